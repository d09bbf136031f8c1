package imaging

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

// Params is the parameter bag of an operation descriptor. Values arrive from
// JSON (float64, string, bool, []interface{}), from form fields and CLI flags
// (string) or from Go callers (any numeric type); the accessors accept all of
// them.
type Params map[string]interface{}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float returns key as a float64, or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, imgerr.Invalid("%s must be a number, got %v", key, v)
	}
	return f, nil
}

// RequiredFloat is Float without a default.
func (p Params) RequiredFloat(key string) (float64, error) {
	if !p.Has(key) {
		return 0, imgerr.Invalid("%s is required", key)
	}
	return p.Float(key, 0)
}

// Int returns key as an int, or def when absent. Fractional values are
// rejected.
func (p Params) Int(key string, def int) (int, error) {
	if v, ok := p[key]; !ok || v == nil {
		return def, nil
	}
	f, err := p.Float(key, 0)
	if err != nil {
		return 0, imgerr.Invalid("%s must be an integer, got %v", key, p[key])
	}
	if f != math.Trunc(f) {
		return 0, imgerr.Invalid("%s must be an integer, got %v", key, f)
	}
	return int(f), nil
}

// RequiredInt is Int without a default.
func (p Params) RequiredInt(key string) (int, error) {
	if !p.Has(key) {
		return 0, imgerr.Invalid("%s is required", key)
	}
	return p.Int(key, 0)
}

// String returns key as a string, or def when absent.
func (p Params) String(key string, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", imgerr.Invalid("%s must be a string, got %v", key, v)
	}
	return s, nil
}

// Bool returns key as a bool, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, imgerr.Invalid("%s must be true or false, got %q", key, b)
		}
		return parsed, nil
	}
	return false, imgerr.Invalid("%s must be a boolean, got %v", key, v)
}

// Points returns key as a list of [x, y] pairs. Accepted shapes are
// [[x,y],...], [{"x":..,"y":..},...] and the string "x,y;x,y;...".
func (p Params) Points(key string) ([]image.Point, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, imgerr.Invalid("%s is required", key)
	}
	if s, ok := v.(string); ok {
		return parsePointString(key, s)
	}
	var list []interface{}
	switch pts := v.(type) {
	case []image.Point:
		return pts, nil
	case [][]int:
		for _, pt := range pts {
			item := make([]interface{}, len(pt))
			for i, c := range pt {
				item[i] = c
			}
			list = append(list, item)
		}
	case [][]float64:
		for _, pt := range pts {
			item := make([]interface{}, len(pt))
			for i, c := range pt {
				item[i] = c
			}
			list = append(list, item)
		}
	case []interface{}:
		list = pts
	default:
		return nil, imgerr.Invalid("%s must be a list of points", key)
	}
	points := make([]image.Point, 0, len(list))
	for i, item := range list {
		var x, y float64
		var okX, okY bool
		switch pt := item.(type) {
		case []interface{}:
			if len(pt) != 2 {
				return nil, imgerr.Invalid("%s[%d] must have two coordinates", key, i)
			}
			x, okX = toFloat(pt[0])
			y, okY = toFloat(pt[1])
		case map[string]interface{}:
			x, okX = toFloat(pt["x"])
			y, okY = toFloat(pt["y"])
		}
		if !okX || !okY {
			return nil, imgerr.Invalid("%s[%d] is not a point", key, i)
		}
		points = append(points, image.Pt(int(math.Round(x)), int(math.Round(y))))
	}
	return points, nil
}

func parsePointString(key, s string) ([]image.Point, error) {
	var points []image.Point
	for i, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		var x, y int
		if _, err := fmt.Sscanf(pair, "%d,%d", &x, &y); err != nil {
			return nil, imgerr.Invalid("%s[%d] %q is not x,y", key, i, pair)
		}
		points = append(points, image.Pt(x, y))
	}
	return points, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint8:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func checkRange(name string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return imgerr.Invalid("%s %v must be between %v and %v", name, v, lo, hi)
	}
	return nil
}

func checkOneOf(name, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return imgerr.Invalid("%s %q must be one of %s", name, v, strings.Join(allowed, ", "))
}

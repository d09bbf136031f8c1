package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/image-studio/internal/batch"
	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imaging"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/studio"
)

// parseStep reads "name" or "name:key=value,key=value".
func parseStep(spec string) (imaging.Descriptor, error) {
	name, rest := spec, ""
	if i := strings.IndexByte(spec, ':'); i >= 0 {
		name, rest = spec[:i], spec[i+1:]
	}
	params, err := parseParams(strings.Split(rest, ","))
	if err != nil {
		return imaging.Descriptor{}, errors.WithMessagef(err, "step %q", spec)
	}
	return imaging.Op(strings.TrimSpace(name), params), nil
}

// parseParams reads key=value pairs. Values stay strings; the operations
// convert them.
func parseParams(pairs []string) (imaging.Params, error) {
	p := imaging.Params{}
	for _, kv := range pairs {
		if strings.TrimSpace(kv) == "" {
			continue
		}
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			return nil, imgerr.Invalid("parameter %q must be key=value", kv)
		}
		p[strings.TrimSpace(kv[:i])] = strings.TrimSpace(kv[i+1:])
	}
	return p, nil
}

// outputFlags turns the shared --format/--quality flags into options.
// The format falls back to the extension of path, then to def's.
func outputFlags(cmd *cobra.Command, path string, def codec.Options) (codec.Options, error) {
	p := imaging.Params{}
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		p["format"] = format
	} else if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		if _, err := codec.ParseFormat(ext); err == nil {
			p["format"] = ext
		}
	}
	if cmd.Flags().Changed("quality") {
		q, _ := cmd.Flags().GetInt("quality")
		p["quality"] = q
	}
	return imaging.OutputOptions(p, def)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var applyCmd = &cobra.Command{
	Use:   "apply INPUT OUTPUT",
	Short: "Apply a chain of operations to one image",
	Example: `  image-studio apply in.png out.jpg --step rotate:angle=90 --step grayscale
  image-studio apply in.png out.png --step "resize:width=800,height=600" --quality 85`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, _ := cmd.Flags().GetStringArray("step")
		req := studio.EditRequest{}
		for _, spec := range specs {
			d, err := parseStep(spec)
			if err != nil {
				return err
			}
			req.Steps = append(req.Steps, d)
		}
		var err error
		if req.Output, err = outputFlags(cmd, args[1], codec.DefaultOptions()); err != nil {
			return err
		}

		return withStudio(cmd, func(ctx context.Context, st *studio.Studio, log logrus.FieldLogger) error {
			res, err := st.Edit(ctx, studio.File(args[0]), req)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], res.Data, 0o644); err != nil {
				return errors.Wrap(err, "failed to write output")
			}
			log.WithFields(logrus.Fields{"output": args[1], "width": res.Width, "height": res.Height, "bytes": res.Size}).Info("image written")
			return nil
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch FILE...",
	Short: "Apply one operation to many images in parallel",
	Example: `  image-studio batch --op resize --param width=320 --param height=240 --out-dir thumbs *.png
  image-studio batch --op auto-enhance --archive enhanced.zip photos/*.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, _ := cmd.Flags().GetString("op")
		pairs, _ := cmd.Flags().GetStringArray("param")
		outDir, _ := cmd.Flags().GetString("out-dir")
		archive, _ := cmd.Flags().GetString("archive")

		params, err := parseParams(pairs)
		if err != nil {
			return err
		}
		req := batch.Request{Op: op, Params: params}
		if cmd.Flags().Changed("format") || cmd.Flags().Changed("quality") {
			if req.Output, err = outputFlags(cmd, "", batch.DefaultOutput()); err != nil {
				return err
			}
		}

		return withStudio(cmd, func(ctx context.Context, st *studio.Studio, log logrus.FieldLogger) error {
			srcs := make([]studio.Source, len(args))
			for i, p := range args {
				srcs[i] = studio.Source{Path: p, Name: filepath.Base(p)}
			}
			job, err := st.Batch(ctx, req, srcs)
			if err != nil {
				return err
			}

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return errors.Wrap(err, "failed to create output directory")
				}
				for _, o := range job.Outcomes {
					if !o.OK() {
						continue
					}
					path := filepath.Join(outDir, o.FileName(job.Output.Format))
					if err := os.WriteFile(path, o.Output, 0o644); err != nil {
						return errors.Wrap(err, "failed to write output")
					}
				}
			}
			if archive != "" {
				f, err := os.Create(archive)
				if err != nil {
					return errors.Wrap(err, "failed to create archive")
				}
				if err := job.Archive(f); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return errors.Wrap(err, "failed to close archive")
				}
			}

			for _, o := range job.Outcomes {
				if o.Failure != nil {
					log.WithFields(logrus.Fields{"item": o.Name, "kind": o.Failure.Kind}).Warn(o.Failure.Message)
				}
			}
			log.WithFields(logrus.Fields{
				"job":       job.ID,
				"succeeded": job.Succeeded(),
				"failed":    job.Failed(),
				"duration":  job.Duration().String(),
			}).Info("batch finished")
			return nil
		})
	},
}

var paletteCmd = &cobra.Command{
	Use:   "palette FILE",
	Short: "Print the dominant colors of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("colors")
		return withStudio(cmd, func(ctx context.Context, st *studio.Studio, _ logrus.FieldLogger) error {
			swatches, err := st.Palette(ctx, studio.File(args[0]), k)
			if err != nil {
				return err
			}
			return printJSON(swatches)
		})
	},
}

var ocrCmd = &cobra.Command{
	Use:   "ocr FILE",
	Short: "Print the text found in an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		regions, _ := cmd.Flags().GetBool("regions")
		return withStudio(cmd, func(ctx context.Context, st *studio.Studio, _ logrus.FieldLogger) error {
			res, err := st.ExtractText(ctx, studio.File(args[0]))
			if err != nil {
				return err
			}
			if regions {
				return printJSON(res)
			}
			fmt.Println(res.Text)
			return nil
		})
	},
}

var compressCmd = &cobra.Command{
	Use:   "compress INPUT OUTPUT",
	Short: "Re-encode an image to fit a target size",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetFloat64("target-kb")
		p := imaging.Params{"target_size_kb": target}
		if format, _ := cmd.Flags().GetString("format"); format != "" {
			p["format"] = format
		}
		if cmd.Flags().Changed("quality") {
			q, _ := cmd.Flags().GetInt("quality")
			p["quality"] = q
		}
		opts, err := imaging.CompressOptions(p)
		if err != nil {
			return err
		}

		return withStudio(cmd, func(ctx context.Context, st *studio.Studio, log logrus.FieldLogger) error {
			res, err := st.Compress(ctx, studio.File(args[0]), opts)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], res.Data, 0o644); err != nil {
				return errors.Wrap(err, "failed to write output")
			}
			entry := log.WithFields(logrus.Fields{"quality": res.Quality, "attempts": res.Attempts, "size_kb": res.SizeKB})
			if !res.MetTarget {
				entry.Warn("target size not reached")
				return nil
			}
			entry.Info("image compressed")
			return nil
		})
	},
}

var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "List the available operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withStudio(cmd, func(ctx context.Context, st *studio.Studio, _ logrus.FieldLogger) error {
			if asJSON {
				return printJSON(st.Operations())
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, op := range st.Operations() {
				names := make([]string, len(op.Params))
				for i, p := range op.Params {
					names[i] = p.Name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", op.Name, strings.Join(names, ","), op.Description)
			}
			fmt.Fprintf(w, "\nbatch:\t%s\n", strings.Join(st.BatchOperations(), ", "))
			return w.Flush()
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{applyCmd, batchCmd, compressCmd} {
		cmd.Flags().String("format", "", "output format: jpeg, png, webp, bmp, gif or tiff")
		cmd.Flags().Int("quality", 90, "output quality for jpeg and webp")
	}
	applyCmd.Flags().StringArray("step", nil, `operation to apply, as "name" or "name:key=value,..."; repeatable`)

	batchCmd.Flags().String("op", "", "batch operation to apply")
	batchCmd.Flags().StringArray("param", nil, "operation parameter as key=value; repeatable")
	batchCmd.Flags().String("out-dir", "", "directory receiving one file per successful image")
	batchCmd.Flags().String("archive", "", "zip file receiving every output plus failures.json")
	_ = batchCmd.MarkFlagRequired("op")

	compressCmd.Flags().Float64("target-kb", 0, "size to fit, in KB")
	_ = compressCmd.MarkFlagRequired("target-kb")

	paletteCmd.Flags().IntP("colors", "n", 5, "number of colors")
	ocrCmd.Flags().Bool("regions", false, "print word regions as JSON")
	operationsCmd.Flags().Bool("json", false, "print JSON")

	rootCmd.AddCommand(applyCmd, batchCmd, paletteCmd, ocrCmd, compressCmd, operationsCmd)
}

package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/trafficai/violation-reporter/internal/bootstrap"
	"github.com/trafficai/violation-reporter/internal/exifgps"
	"github.com/trafficai/violation-reporter/internal/fingerprint"
	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/media"
	"github.com/trafficai/violation-reporter/internal/storage"
)

func (a *app) fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <file>",
		Short: "Print the content fingerprint used for duplicate detection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("read media: %w", err)
			}
			defer f.Close()

			hasher, err := fingerprint.NewHasher(fingerprint.Algorithm(a.cfg.FingerprintAlgorithm))
			if err != nil {
				return err
			}
			fp, err := hasher.SumReader(f)
			if err != nil {
				return err
			}

			p := a.printer(cmd)
			if p.asJSON {
				return p.writeJSON(map[string]string{
					"file":        filepath.Base(args[0]),
					"algorithm":   string(hasher.Algorithm()),
					"fingerprint": fp.String(),
				})
			}
			fmt.Fprintln(p.w, fp)
			return nil
		},
	}
}

type locateResult struct {
	File       string          `json:"file"`
	Location   *geo.Coordinate `json:"location"`
	Source     string          `json:"source"`
	CapturedAt *time.Time      `json:"capturedAt,omitempty"`
}

func (a *app) locateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate <file>",
		Short: "Show where media was taken, from EXIF GPS or the device position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, data, err := readMedia(args[0])
			if err != nil {
				return err
			}
			locator, err := bootstrap.NewLocator(a.cfg, bootstrap.Options{Location: a.location(cmd)})
			if err != nil {
				return err
			}

			embedded := exifgps.ExtractLocation(data)
			res := locateResult{File: name, Source: "none"}
			res.Location = geo.Resolve(cmd.Context(), data,
				func([]byte) *geo.Coordinate { return embedded }, locator, a.logger)
			switch {
			case embedded != nil:
				res.Source = "exif"
			case res.Location != nil:
				res.Source = "device"
			}
			if at, ok := exifgps.CaptureTime(data); ok {
				res.CapturedAt = &at
			}

			p := a.printer(cmd)
			if p.asJSON {
				return p.writeJSON(res)
			}
			p.field("Location", "%s", p.location(res.Location))
			p.field("Source", "%s", res.Source)
			if res.CapturedAt != nil {
				p.field("Captured", "%s", res.CapturedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

type frameResult struct {
	media.Frame
	Bytes int    `json:"bytes"`
	Path  string `json:"path,omitempty"`
}

func (a *app) framesCmd() *cobra.Command {
	var (
		count    int
		interval float64
		outDir   string
	)
	cmd := &cobra.Command{
		Use:   "frames <file>",
		Short: "Sample evenly spaced frames from a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, sampler, err := a.videoInput(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("count") {
				count = a.cfg.FrameCount
			}
			if !cmd.Flags().Changed("interval") {
				interval = a.cfg.FrameInterval
			}

			frames, err := sampler.SampleFrames(cmd.Context(), blob, count, interval)
			if err != nil {
				return err
			}

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
			}
			results := make([]frameResult, 0, len(frames))
			for _, f := range frames {
				r := frameResult{Frame: f, Bytes: len(f.Data)}
				if outDir != "" {
					r.Path = filepath.Join(outDir, fmt.Sprintf("frame-%03d-%.2fs.jpg", f.Index, f.Timestamp))
					if err := storage.WriteFileAtomic(r.Path, bytes.NewReader(f.Data), 0644); err != nil {
						return fmt.Errorf("write frame %d: %w", f.Index, err)
					}
				}
				results = append(results, r)
			}

			p := a.printer(cmd)
			if p.asJSON {
				return p.writeJSON(results)
			}
			for _, r := range results {
				fmt.Fprintf(p.w, "%3d  %7.2fs  %8d bytes  %s\n", r.Index, r.Timestamp, r.Bytes, r.Path)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", media.DefaultFrameCount, "Number of frames to sample (FRAME_COUNT)")
	cmd.Flags().Float64Var(&interval, "interval", media.DefaultFrameInterval, "Seconds between frames (FRAME_INTERVAL)")
	cmd.Flags().StringVar(&outDir, "out", "", "Directory to write the JPEG frames to")
	return cmd
}

func (a *app) thumbnailCmd() *cobra.Command {
	var (
		offset float64
		out    string
	)
	cmd := &cobra.Command{
		Use:   "thumbnail <file>",
		Short: "Capture a preview frame near the start of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, sampler, err := a.videoInput(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("offset") {
				offset = a.cfg.ThumbnailOffset
			}

			f, err := sampler.Thumbnail(cmd.Context(), blob, offset)
			if err != nil {
				return err
			}
			r := frameResult{Frame: f, Bytes: len(f.Data), Path: out}
			if out != "" {
				if err := storage.WriteFileAtomic(out, bytes.NewReader(f.Data), 0644); err != nil {
					return fmt.Errorf("write thumbnail: %w", err)
				}
			}

			p := a.printer(cmd)
			if p.asJSON {
				return p.writeJSON(r)
			}
			fmt.Fprintf(p.w, "%.2fs  %d bytes  %s\n", r.Timestamp, r.Bytes, r.Path)
			return nil
		},
	}
	cmd.Flags().Float64Var(&offset, "offset", media.DefaultThumbnailOffset, "Preferred offset in seconds (THUMBNAIL_OFFSET)")
	cmd.Flags().StringVar(&out, "out", "", "File to write the JPEG preview to")
	return cmd
}

func (a *app) durationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duration <file>",
		Short: "Print a video's duration in seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, sampler, err := a.videoInput(args[0])
			if err != nil {
				return err
			}
			d, err := sampler.Duration(cmd.Context(), blob)
			if err != nil {
				return err
			}

			p := a.printer(cmd)
			if p.asJSON {
				return p.writeJSON(map[string]any{"file": blob.Name, "duration": d})
			}
			fmt.Fprintf(p.w, "%.3f\n", d)
			return nil
		},
	}
}

func (a *app) videoInput(path string) (media.Blob, *media.Sampler, error) {
	name, data, err := readMedia(path)
	if err != nil {
		return media.Blob{}, nil, err
	}
	blob, err := media.NewBlob(name, data)
	if err != nil {
		return media.Blob{}, nil, err
	}
	sampler, err := bootstrap.NewStandaloneSampler(a.cfg, a.logger)
	if err != nil {
		return media.Blob{}, nil, err
	}
	return blob, sampler, nil
}

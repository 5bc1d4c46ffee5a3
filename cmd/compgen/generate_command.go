package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/aschepis/backscratcher/compgen/generator"
	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/aschepis/backscratcher/compgen/notify"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		requirements  string
		componentType string
		imagePath     string
		outDir        string
		jsonOutput    bool
		notifyFlag    bool
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate an AEM component from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}

			req := generator.Request{
				Prompt:        strings.Join(args, " "),
				Requirements:  requirements,
				ComponentType: componentType,
			}
			if imagePath != "" {
				img, err := loadImage(imagePath)
				if err != nil {
					return err
				}
				req.Image = img
			}

			result, err := a.Service.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}

			if notifyFlag {
				// Notification failures are logged by the notifier.
				_ = notify.New(ctx.logger).Result(result)
			}

			var written []string
			if outDir != "" && result.Status == generator.StatusSuccess {
				written, err = writeFiles(outDir, result)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), result, written)
			}

			if result.Status != generator.StatusSuccess {
				return errors.New("component generation failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&requirements, "requirements", "r", "", "Additional requirements for the component")
	cmd.Flags().StringVarP(&componentType, "type", "t", "", "Component type, e.g. banner or teaser")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Image file (or file holding a data URL) to design from")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to write the generated files to")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&notifyFlag, "notify", false, "Send a desktop notification when done")

	return cmd
}

// loadImage reads an image file. Files holding a data URL or bare base64
// text are decoded; anything else is taken as raw image bytes.
func loadImage(path string) (*llm.Image, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-selected input file
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image file %s is empty", path)
	}

	mime := http.DetectContentType(data)
	if strings.HasPrefix(mime, "image/") {
		return &llm.Image{Data: data, MIMEType: mime}, nil
	}
	img, err := llm.ParseDataURL(string(data))
	if err != nil {
		return nil, fmt.Errorf("image file %s is neither an image nor a data URL: %w", path, err)
	}
	return img, nil
}

// writeFiles writes the generated files under dir/<component name>.
func writeFiles(dir string, result *generator.Result) ([]string, error) {
	name := result.ComponentName
	if name == "" || filepath.Base(name) != name || name == ".." {
		return nil, fmt.Errorf("component name %q is not a valid directory name", name)
	}

	target := filepath.Join(dir, name)
	if err := os.MkdirAll(target, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	names := lo.Keys(result.GeneratedFiles)
	slices.Sort(names)
	written := make([]string, 0, len(names))
	for _, file := range names {
		path := filepath.Join(target, file)
		if err := os.WriteFile(path, []byte(result.GeneratedFiles[file]), 0o600); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func printResult(w io.Writer, result *generator.Result, written []string) {
	if result.Status != generator.StatusSuccess {
		fmt.Fprintf(w, "Error: %s\n", result.Error)
		if result.ModelError != "" {
			fmt.Fprintf(w, "Detail: %s\n", result.ModelError)
		}
		if result.Model != "" {
			fmt.Fprintf(w, "Model: %s (attempts: %d)\n", result.Model, result.Attempts)
		}
		return
	}

	fmt.Fprintln(w, result.Message)
	fmt.Fprintf(w, "Component: %s\n", result.ComponentName)
	if result.ComponentDescription != "" {
		fmt.Fprintf(w, "Description: %s\n", result.ComponentDescription)
	}
	fmt.Fprintf(w, "Model: %s (attempts: %d, fallback: %s)\n", result.Model, result.Attempts, yesNo(result.Fallback))

	names := lo.Keys(result.GeneratedFiles)
	slices.Sort(names)
	rows := lo.Map(names, func(name string, _ int) []string {
		return []string{name, strconv.Itoa(len(result.GeneratedFiles[name]))}
	})
	fmt.Fprintln(w, renderTable([]string{"File", "Bytes"}, rows, []columnAlignment{alignLeft, alignRight}))

	for _, path := range written {
		fmt.Fprintf(w, "Wrote %s\n", path)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/safety/internal/enrollment"
	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/pkg/dto"
)

var (
	manifestPath string
	imageDir     string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk upsert workers from a JSON manifest and a directory of photos",
	Long: `Reads a JSON array of {"employeeNumber","name","team","mappedFileName"} rows.
Rows whose mappedFileName exists in --dir are enrolled with that photo; rows
without a photo only update the name and team of an existing worker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := loadManifest(manifestPath)
		if err != nil {
			return err
		}
		files, err := loadFiles(imageDir, entries)
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(len(entries),
			progressbar.OptionSetDescription("enrolling"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		result := coordinator.BulkImport(cmd.Context(), entries, files, func(enrollment.BulkItem) {
			_ = bar.Add(1)
		})
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)

		for _, item := range result.Items {
			if item.Err != nil {
				fmt.Printf("skipped %s: %v\n", item.EmployeeNumber, item.Err)
			}
		}
		fmt.Printf("created=%d updated=%d skipped=%d\n", result.Created, result.Updated, result.Skipped)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&manifestPath, "manifest", "", "path to the JSON manifest")
	importCmd.Flags().StringVar(&imageDir, "dir", ".", "directory holding the mapped photo files")
	_ = importCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(importCmd)
}

func loadManifest(path string) ([]models.EnrollmentRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var rows []dto.BulkWorkerEntry
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	entries := make([]models.EnrollmentRequest, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.EnrollmentRequest{
			EmployeeNumber: r.EmployeeNumber,
			Name:           r.Name,
			Team:           r.Team,
			MappedFileName: r.MappedFileName,
		})
	}
	return entries, nil
}

// loadFiles reads the photos referenced by the manifest. Missing files are
// left out so the import treats those rows as profile-only.
func loadFiles(dir string, entries []models.EnrollmentRequest) (map[string]enrollment.UploadedFile, error) {
	files := make(map[string]enrollment.UploadedFile)
	for _, e := range entries {
		name := e.MappedFileName
		if name == "" || filepath.Base(name) != name {
			continue
		}
		if _, seen := files[name]; seen {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		files[name] = enrollment.UploadedFile{
			Name:        name,
			ContentType: mime.TypeByExtension(filepath.Ext(name)),
			Data:        data,
		}
	}
	return files, nil
}

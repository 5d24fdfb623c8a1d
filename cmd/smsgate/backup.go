package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smsgate/internal/config"
	"smsgate/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup of the message database, config and contact directory",
		Long: `Creates a compressed .tar.gz archive containing a consistent snapshot of
the SQLite database, the configuration file and the contact directory. It is
safe to run while 'smsgate serve' is running. The backup is timestamped by
default.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			dbPath, dirPath := resolveDataPaths(cfgPath)

			if outputPath == "" {
				backupDir := filepath.Join(config.DefaultConfigDir(), "backups")
				if err := os.MkdirAll(backupDir, 0o700); err != nil {
					return fmt.Errorf("cannot create backup directory: %w", err)
				}
				ts := time.Now().Format("20060102-150405")
				outputPath = filepath.Join(backupDir, fmt.Sprintf("smsgate-backup-%s.tar.gz", ts))
			}

			var files []string

			// The database is copied through SQLite so pages still in the
			// WAL of a running server are included.
			if _, err := os.Stat(dbPath); err == nil {
				snapshot, cleanup, err := snapshotDB(cmd.Context(), dbPath)
				if err != nil {
					return err
				}
				defer cleanup()
				files = append(files, snapshot)
			}
			if _, err := os.Stat(cfgPath); err == nil {
				files = append(files, cfgPath)
			}
			if dirPath != "" {
				if _, err := os.Stat(dirPath); err == nil {
					files = append(files, dirPath)
				}
			}

			if len(files) == 0 {
				return fmt.Errorf("no files to backup (db: %s, config: %s)", dbPath, cfgPath)
			}

			if err := createTarGz(outputPath, files); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			fmt.Printf("Backup created: %s\n", outputPath)
			fmt.Printf("Files included: %d\n", len(files))
			for _, f := range files {
				info, _ := os.Stat(f)
				size := int64(0)
				if info != nil {
					size = info.Size()
				}
				fmt.Printf("  - %s (%s)\n", filepath.Base(f), humanize.IBytes(uint64(size)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: ~/.smsgate/backups/smsgate-backup-<timestamp>.tar.gz)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var inputPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "restore [file.tar.gz]",
		Short: "Restore smsgate data from a backup archive",
		Long: `Restores the SQLite database, configuration file and contact directory
from a .tar.gz archive created by 'smsgate backup'. Stop 'smsgate serve' first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" && len(args) > 0 {
				inputPath = args[0]
			}
			if inputPath == "" {
				return fmt.Errorf("specify a backup file: smsgate restore <file.tar.gz>")
			}

			cfgPath := resolveConfigPath()
			dbPath, dirPath := resolveDataPaths(cfgPath)

			if !force {
				existing := false
				for _, p := range []string{dbPath, cfgPath} {
					if _, err := os.Stat(p); err == nil {
						existing = true
					}
				}
				if existing {
					fmt.Printf("WARNING: This will overwrite existing data.\n")
					fmt.Printf("  Database: %s\n", dbPath)
					fmt.Printf("  Config:   %s\n", cfgPath)
					fmt.Printf("Use --force to skip this warning.\n")
					return fmt.Errorf("restore aborted (use --force to proceed)")
				}
			}

			restored, err := extractTarGz(inputPath, restoreTargets{db: dbPath, config: cfgPath, directory: dirPath})
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			fmt.Printf("Restore completed from: %s\n", inputPath)
			fmt.Printf("Files restored: %d\n", len(restored))
			for _, f := range restored {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "backup file to restore from")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing data without warning")
	return cmd
}

// resolveDataPaths returns the database and contact directory paths named
// by the config at cfgPath, or the defaults when it cannot be loaded.
func resolveDataPaths(cfgPath string) (dbPath, dirPath string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
		cfg.ExpandPaths()
	}
	return cfg.Storage.DBPath, cfg.Contacts.DirectoryPath
}

// snapshotDB copies the database at dbPath into a temporary directory under
// the same file name. cleanup removes the copy.
func snapshotDB(ctx context.Context, dbPath string) (string, func(), error) {
	tmp, err := os.MkdirTemp("", "smsgate-backup-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(tmp) }

	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	dest := filepath.Join(tmp, filepath.Base(dbPath))
	if err := st.Snapshot(ctx, dest); err != nil {
		cleanup()
		return "", nil, err
	}
	return dest, cleanup, nil
}

// createTarGz creates a .tar.gz archive from the given files.
func createTarGz(outputPath string, files []string) error {
	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer outFile.Close()

	gzWriter := gzip.NewWriter(outFile)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	for _, filePath := range files {
		if err := addFileToTar(tarWriter, filePath); err != nil {
			return fmt.Errorf("add %s: %w", filePath, err)
		}
	}

	return nil
}

func addFileToTar(tw *tar.Writer, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.Base(filePath)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tw, file)
	return err
}

type restoreTargets struct {
	db        string
	config    string
	directory string
}

// target maps an archive entry to where it is restored.
func (t restoreTargets) target(name string) string {
	switch {
	case name == "config.json":
		return t.config
	case name == filepath.Base(t.db):
		return t.db
	case strings.HasSuffix(name, ".db"):
		return t.db
	case strings.HasSuffix(name, ".db-wal"):
		return t.db + "-wal"
	case strings.HasSuffix(name, ".db-shm"):
		return t.db + "-shm"
	case t.directory != "" && name == filepath.Base(t.directory):
		return t.directory
	default:
		return filepath.Join(filepath.Dir(t.config), name)
	}
}

// extractTarGz extracts relevant files from a backup archive.
func extractTarGz(archivePath string, targets restoreTargets) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("not a valid gzip file: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	var restored []string

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Base(header.Name)
		targetPath := targets.target(name)

		// A restored database must not be replayed against a stale WAL.
		if strings.HasSuffix(name, ".db") {
			for _, suffix := range []string{"-wal", "-shm"} {
				if err := os.Remove(targetPath + suffix); err != nil && !os.IsNotExist(err) {
					return nil, err
				}
			}
		}

		if err := os.MkdirAll(filepath.Dir(targetPath), 0o700); err != nil {
			return nil, err
		}

		outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", targetPath, err)
		}

		if _, err := io.Copy(outFile, tarReader); err != nil {
			outFile.Close()
			return nil, fmt.Errorf("extract %s: %w", targetPath, err)
		}
		outFile.Close()

		restored = append(restored, targetPath)
	}

	return restored, nil
}

// Package casestore persists per-case state as a directory pair per case: the
// upload directory holds the original scans, the results directory holds the
// pipeline's working copies and artifacts plus the status/progress/error
// records this package owns. The pipeline collaborator writes its own output
// files into the same results directory; ownership is disjoint per file, so
// no cross-process locking is needed.
package casestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
)

const (
	statusFile   = "status.txt"
	progressFile = "progress.json"
	errorFile    = "error.txt"
	metadataFile = "metadata.json"
	resultsFile  = "results.txt"
)

type Store struct {
	uploadRoot  string
	resultsRoot string
}

func New(uploadRoot, resultsRoot string) (*Store, error) {
	if uploadRoot == "" {
		uploadRoot = "./data/uploads"
	}
	if resultsRoot == "" {
		resultsRoot = "./data/results"
	}
	for _, root := range []string{uploadRoot, resultsRoot} {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create store root: %w", err)
		}
	}
	return &Store{uploadRoot: uploadRoot, resultsRoot: resultsRoot}, nil
}

func (s *Store) uploadDir(caseID string) string {
	return filepath.Join(s.uploadRoot, caseID)
}

func (s *Store) ResultsDir(caseID string) string {
	return filepath.Join(s.resultsRoot, caseID)
}

func (s *Store) ScanPath(caseID, filename string) string {
	return filepath.Join(s.uploadDir(caseID), filename)
}

// Create makes the upload and results directories together or not at all.
// The results directory is the uniqueness marker: if it exists the id is
// taken, even when a previous run left no status behind.
func (s *Store) Create(caseID string) error {
	resultsDir := s.ResultsDir(caseID)
	if _, err := os.Stat(resultsDir); err == nil {
		return domain.WrapError(domain.ErrCaseExists, "create case", fmt.Errorf("case %q", caseID))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat results dir: %w", err)
	}

	uploadDir := s.uploadDir(caseID)
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		_ = os.RemoveAll(uploadDir)
		return fmt.Errorf("create results dir: %w", err)
	}
	if err := s.WriteStatus(caseID, domain.StatusInitializing); err != nil {
		_ = os.RemoveAll(uploadDir)
		_ = os.RemoveAll(resultsDir)
		return err
	}
	return nil
}

// Delete removes both directories. Used for validation rollback, so a failed
// submission leaves no residue and the same id can be resubmitted.
func (s *Store) Delete(caseID string) error {
	var errs []error
	if err := os.RemoveAll(s.uploadDir(caseID)); err != nil {
		errs = append(errs, fmt.Errorf("remove upload dir: %w", err))
	}
	if err := os.RemoveAll(s.ResultsDir(caseID)); err != nil {
		errs = append(errs, fmt.Errorf("remove results dir: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Store) Exists(caseID string) (bool, error) {
	_, err := os.Stat(s.ResultsDir(caseID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat results dir: %w", err)
}

func (s *Store) CreatedAt(caseID string) (time.Time, error) {
	info, err := os.Stat(s.ResultsDir(caseID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, domain.WrapError(domain.ErrCaseNotFound, "case created at", fmt.Errorf("case %q", caseID))
		}
		return time.Time{}, fmt.Errorf("stat results dir: %w", err)
	}
	return info.ModTime(), nil
}

func (s *Store) ReadStatus(caseID string) (domain.CaseStatus, error) {
	if err := s.requireCase(caseID, "read status"); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(filepath.Join(s.ResultsDir(caseID), statusFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// A case directory without a status marker is a case whose
			// submission is still in flight; report it as processing, the
			// way the original service did.
			return domain.StatusProcessing, nil
		}
		return "", fmt.Errorf("read status: %w", err)
	}
	return domain.CaseStatus(strings.TrimSpace(string(raw))), nil
}

func (s *Store) WriteStatus(caseID string, status domain.CaseStatus) error {
	return s.writeFileAtomic(caseID, statusFile, []byte(status))
}

func (s *Store) ReadProgress(caseID string) (domain.ProgressRecord, error) {
	if err := s.requireCase(caseID, "read progress"); err != nil {
		return domain.ProgressRecord{}, err
	}
	raw, err := os.ReadFile(filepath.Join(s.ResultsDir(caseID), progressFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ProgressRecord{}, domain.WrapError(domain.ErrCaseNotFound, "read progress", fmt.Errorf("no progress record for case %q", caseID))
		}
		return domain.ProgressRecord{}, fmt.Errorf("read progress: %w", err)
	}
	var record domain.ProgressRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("decode progress: %w", err)
	}
	return record, nil
}

func (s *Store) WriteProgress(caseID string, record domain.ProgressRecord) error {
	if record.Details == nil {
		record.Details = map[string]any{}
	}
	raw, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	return s.writeFileAtomic(caseID, progressFile, raw)
}

func (s *Store) ReadError(caseID string) (string, error) {
	if err := s.requireCase(caseID, "read error"); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(filepath.Join(s.ResultsDir(caseID), errorFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.WrapError(domain.ErrCaseNotFound, "read error", fmt.Errorf("no error record for case %q", caseID))
		}
		return "", fmt.Errorf("read error detail: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *Store) WriteError(caseID, detail string) error {
	return s.writeFileAtomic(caseID, errorFile, []byte(detail))
}

func (s *Store) ReadMetadata(caseID string) (map[string]any, error) {
	if err := s.requireCase(caseID, "read metadata"); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(s.ResultsDir(caseID), metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	metadata := map[string]any{}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return metadata, nil
}

func (s *Store) WriteMetadata(caseID string, metadata map[string]any) error {
	raw, err := json.MarshalIndent(metadata, "", "    ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return s.writeFileAtomic(caseID, metadataFile, raw)
}

func (s *Store) MergeMetadata(caseID string, update map[string]any) error {
	metadata, err := s.ReadMetadata(caseID)
	if err != nil {
		return err
	}
	for k, v := range update {
		metadata[k] = v
	}
	return s.WriteMetadata(caseID, metadata)
}

// ReadResults parses the pipeline's line-oriented "key: value" results record
// into a flat map. Lines without a colon are skipped.
func (s *Store) ReadResults(caseID string) (map[string]string, error) {
	if err := s.requireCase(caseID, "read results"); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(s.ResultsDir(caseID), resultsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read results: %w", err)
	}
	results := map[string]string{}
	for _, line := range strings.Split(string(raw), "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		results[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return results, nil
}

func (s *Store) SaveScan(caseID, filename string, data io.Reader) error {
	path := s.ScanPath(caseID, filename)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create scan file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write scan file: %w", err)
	}
	return nil
}

func (s *Store) CopyScanToResults(caseID, filename string) error {
	src, err := os.Open(s.ScanPath(caseID, filename))
	if err != nil {
		return fmt.Errorf("open scan %s: %w", filename, err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(s.ResultsDir(caseID), filename))
	if err != nil {
		return fmt.Errorf("create results copy: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy scan to results: %w", err)
	}
	return nil
}

// List returns every case that has a results directory with a status marker,
// newest first. Cases mid-creation (no status yet) are skipped.
func (s *Store) List() ([]domain.Case, error) {
	entries, err := os.ReadDir(s.resultsRoot)
	if err != nil {
		return nil, fmt.Errorf("read results root: %w", err)
	}

	cases := make([]domain.Case, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		caseID := entry.Name()
		raw, err := os.ReadFile(filepath.Join(s.ResultsDir(caseID), statusFile))
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		metadata, err := s.ReadMetadata(caseID)
		if err != nil {
			metadata = map[string]any{}
		}
		cases = append(cases, domain.Case{
			ID:        caseID,
			Status:    domain.CaseStatus(strings.TrimSpace(string(raw))),
			Metadata:  metadata,
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(cases, func(i, j int) bool {
		return cases[i].CreatedAt.After(cases[j].CreatedAt)
	})
	return cases, nil
}

func (s *Store) requireCase(caseID, operation string) error {
	ok, err := s.Exists(caseID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.WrapError(domain.ErrCaseNotFound, operation, fmt.Errorf("case %q", caseID))
	}
	return nil
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it over the destination, so concurrent readers see either the
// previous record or the new one, never a partial write.
func (s *Store) writeFileAtomic(caseID, name string, data []byte) error {
	dir := s.ResultsDir(caseID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return domain.WrapError(domain.ErrCaseNotFound, "write "+name, fmt.Errorf("case %q", caseID))
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp record: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

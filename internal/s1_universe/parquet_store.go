package s1_universe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/wonny/spxlab/internal/contracts"
)

// Partition modes
const (
	ModeDaily     = "daily"
	ModeIntervals = "intervals"
)

const (
	dataFileName     = "data.parquet"
	manifestFileName = "manifest.json"
	backupSuffix     = ".bak"
	stagingSuffix    = ".tmp"

	// buildIDKey is the interval file metadata entry naming the build that wrote it
	buildIDKey = "spxlab.build_id"
)

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// dailyRow is the on-disk schema of the daily table
type dailyRow struct {
	Ticker string `parquet:"ticker,dict,zstd"`
	Date   int32  `parquet:"date,date"`
}

// intervalRow is the on-disk schema of the interval table
type intervalRow struct {
	Ticker    string `parquet:"ticker,dict,zstd"`
	StartDate int32  `parquet:"start_date,date"`
	EndDate   int32  `parquet:"end_date,date"`
	GVKey     *int64 `parquet:"gvkey,optional"`
}

// ParquetStore keeps both membership tables as Parquet files under
// {root}/universe={name}/mode={daily|intervals}/data.parquet.
// ⭐ SSOT: 파티션 경로는 이 타입만 생성
type ParquetStore struct {
	root     string
	universe string
	backup   bool
}

// NewParquetStore binds a store to one universe under root.
// backup keeps the previous table as data.parquet.bak on overwrite.
func NewParquetStore(root, universe string, backup bool) *ParquetStore {
	return &ParquetStore{root: root, universe: universe, backup: backup}
}

// Universe returns the bound universe name
func (s *ParquetStore) Universe() string { return s.universe }

// Location returns the universe partition directory
func (s *ParquetStore) Location() string { return s.partitionDir() }

func (s *ParquetStore) partitionDir() string {
	return filepath.Join(s.root, "universe="+s.universe)
}

// TablePath returns the data file path for a mode
func (s *ParquetStore) TablePath(mode string) string {
	return filepath.Join(s.partitionDir(), "mode="+mode, dataFileName)
}

func (s *ParquetStore) manifestPath() string {
	return filepath.Join(s.partitionDir(), manifestFileName)
}

// Exists reports whether the interval table is present
func (s *ParquetStore) Exists() bool {
	_, err := os.Stat(s.TablePath(ModeIntervals))
	return err == nil
}

// ReadIntervals loads the interval table sorted by (ticker, start_date)
func (s *ParquetStore) ReadIntervals(ctx context.Context) ([]contracts.MembershipInterval, error) {
	intervals, _, err := s.readIntervalFile()
	return intervals, err
}

// ReadSnapshot loads the interval table with the build id stamped into the file
// and the manifest, if any
func (s *ParquetStore) ReadSnapshot(ctx context.Context) (*Snapshot, error) {
	intervals, buildID, err := s.readIntervalFile()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Intervals: intervals, BuildID: buildID}
	manifest, err := s.ReadManifest(ctx)
	switch {
	case err == nil:
		snap.Manifest = manifest
	case !errors.Is(err, ErrStoreNotFound):
		return nil, err
	}
	return snap, nil
}

func (s *ParquetStore) readIntervalFile() ([]contracts.MembershipInterval, string, error) {
	path := s.TablePath(ModeIntervals)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("%s: %w", path, ErrStoreNotFound)
		}
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("stat %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, "", fmt.Errorf("open parquet %s: %w", path, err)
	}
	buildID, _ := pf.Lookup(buildIDKey)

	rows, err := parquet.Read[intervalRow](f, info.Size())
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}

	out := make([]contracts.MembershipInterval, len(rows))
	for i, r := range rows {
		out[i] = contracts.MembershipInterval{
			Ticker:    r.Ticker,
			StartDate: fromEpochDays(r.StartDate),
			EndDate:   fromEpochDays(r.EndDate),
			GVKey:     r.GVKey,
		}
	}
	contracts.SortIntervals(out)
	return out, buildID, nil
}

// WriteIntervals replaces the interval table wholesale.
// The file carries no build id, so engines reading it do not cache.
func (s *ParquetStore) WriteIntervals(ctx context.Context, intervals []contracts.MembershipInterval) error {
	rows, err := toIntervalRows(intervals)
	if err != nil {
		return err
	}
	return s.replaceTable(ctx, ModeIntervals, func(path string) error {
		return parquet.WriteFile(path, rows)
	})
}

func toIntervalRows(intervals []contracts.MembershipInterval) ([]intervalRow, error) {
	sorted := make([]contracts.MembershipInterval, len(intervals))
	copy(sorted, intervals)
	contracts.SortIntervals(sorted)

	rows := make([]intervalRow, len(sorted))
	for i, iv := range sorted {
		if iv.EndDate.Before(iv.StartDate) {
			return nil, fmt.Errorf("interval %s %s: %w", iv.Ticker, iv.Range(), ErrInvalidPeriod)
		}
		rows[i] = intervalRow{
			Ticker:    iv.Ticker,
			StartDate: toEpochDays(iv.StartDate),
			EndDate:   toEpochDays(iv.EndDate),
			GVKey:     iv.GVKey,
		}
	}
	return rows, nil
}

func toDailyRows(records []contracts.MembershipRecord) []dailyRow {
	rows := make([]dailyRow, len(records))
	for i, r := range records {
		rows[i] = dailyRow{Ticker: r.Ticker, Date: toEpochDays(r.Date)}
	}
	return rows
}

// ReadDaily loads the daily table
func (s *ParquetStore) ReadDaily(ctx context.Context) ([]contracts.MembershipRecord, error) {
	rows, err := readTable[dailyRow](s.TablePath(ModeDaily))
	if err != nil {
		return nil, err
	}

	out := make([]contracts.MembershipRecord, len(rows))
	for i, r := range rows {
		out[i] = contracts.MembershipRecord{Ticker: r.Ticker, Date: fromEpochDays(r.Date)}
	}
	return out, nil
}

// WriteDaily replaces the daily table wholesale
func (s *ParquetStore) WriteDaily(ctx context.Context, records []contracts.MembershipRecord) error {
	rows := toDailyRows(records)
	return s.replaceTable(ctx, ModeDaily, func(path string) error {
		return parquet.WriteFile(path, rows)
	})
}

// ReadManifest loads manifest.json
func (s *ParquetStore) ReadManifest(ctx context.Context) (*Manifest, error) {
	data, err := os.ReadFile(s.manifestPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", s.manifestPath(), ErrStoreNotFound)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest atomically replaces manifest.json
func (s *ParquetStore) WriteManifest(ctx context.Context, m *Manifest) error {
	tmp, err := s.stageManifest(m)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, s.manifestPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}

// CommitBuild stages every file of the build before swapping any of them in.
// A staging failure leaves the previous build untouched. The interval file is
// stamped with the build id, so a failure between renames can never pair new
// intervals with the old id.
// ⭐ SSOT: 빌드 커밋 (daily + intervals + manifest)
func (s *ParquetStore) CommitBuild(ctx context.Context, b *Build) error {
	if b == nil || b.Manifest == nil {
		return errors.New("commit build: manifest is required")
	}

	intervals, err := toIntervalRows(b.Intervals)
	if err != nil {
		return err
	}
	daily := toDailyRows(b.Daily)

	var staged []string
	discard := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}

	dailyTmp, err := s.stageTable(ctx, ModeDaily, func(path string) error {
		return parquet.WriteFile(path, daily)
	})
	if err != nil {
		return err
	}
	staged = append(staged, dailyTmp)

	intervalTmp, err := s.stageTable(ctx, ModeIntervals, func(path string) error {
		return parquet.WriteFile(path, intervals, parquet.KeyValueMetadata(buildIDKey, b.Manifest.BuildID))
	})
	if err != nil {
		discard()
		return err
	}
	staged = append(staged, intervalTmp)

	manifestTmp, err := s.stageManifest(b.Manifest)
	if err != nil {
		discard()
		return err
	}
	staged = append(staged, manifestTmp)

	if err := ctx.Err(); err != nil {
		discard()
		return err
	}

	// 여기부터 rename만 남음
	if err := s.commitTable(ModeDaily, dailyTmp); err != nil {
		discard()
		return err
	}
	if err := s.commitTable(ModeIntervals, intervalTmp); err != nil {
		discard()
		return err
	}
	if err := os.Rename(manifestTmp, s.manifestPath()); err != nil {
		_ = os.Remove(manifestTmp)
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}

func (s *ParquetStore) stageManifest(m *Manifest) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}

	if err := os.MkdirAll(s.partitionDir(), 0o755); err != nil {
		return "", fmt.Errorf("create partition dir: %w", err)
	}

	tmp := s.manifestPath() + stagingSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return tmp, nil
}

// replaceTable writes a new table next to the old one and swaps it in.
// The previous file is kept as .bak when backups are enabled.
func (s *ParquetStore) replaceTable(ctx context.Context, mode string, write func(path string) error) error {
	tmp, err := s.stageTable(ctx, mode, write)
	if err != nil {
		return err
	}
	if err := s.commitTable(mode, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// stageTable writes the new table to its staging path
func (s *ParquetStore) stageTable(ctx context.Context, mode string, write func(path string) error) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := s.TablePath(mode)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create %s partition: %w", mode, err)
	}

	tmp := path + stagingSuffix
	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write %s table: %w", mode, err)
	}
	return tmp, nil
}

// commitTable swaps a staged table in, keeping the previous one as .bak when enabled
func (s *ParquetStore) commitTable(mode, tmp string) error {
	path := s.TablePath(mode)
	if s.backup {
		if _, err := os.Stat(path); err == nil {
			if err := os.Rename(path, path+backupSuffix); err != nil {
				return fmt.Errorf("backup %s table: %w", mode, err)
			}
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit %s table: %w", mode, err)
	}
	return nil
}

func readTable[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrStoreNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

func toEpochDays(t time.Time) int32 {
	return int32(contracts.DaysBetween(epoch, t))
}

func fromEpochDays(d int32) time.Time {
	return epoch.AddDate(0, 0, int(d))
}

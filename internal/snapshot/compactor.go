package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
)

// 1行あたりの最大長。エピソードリストが肥大したレコードを想定して広めに取る。
const maxLineSize = 16 * 1024 * 1024

// CompactionMetrics はコンパクタが記録するメトリクスのインターフェース。
type CompactionMetrics interface {
	RecordSnapshotRecords(dataset string, count int)
	RecordCompactionRun(dataset string, success bool)
}

// Record はコンパクション対象の1レコード。Keyはデータセット内で
// レコードを一意に識別する値（キーのフィールド値そのもの）。
type Record struct {
	Key  string
	Data any
}

// Compactor は当日の新レコードを既存スナップショットへマージする。
// スナップショットは1行1レコードの行JSONファイルで、同一キーは
// 新レコードが勝つ（latest-wins）。更新のなかった既存行は
// バイト単位でそのまま新ファイルへ引き継がれる。
//
// 出力はまず一時ファイルへ書き切り、成功した場合のみ置き換えで
// 公開する。途中で失敗した場合は既存スナップショットを変更しない。
type Compactor struct {
	store   Store
	dir     string
	metrics CompactionMetrics
	logger  *slog.Logger
}

// NewCompactor はCompactorの新しいインスタンスを生成する。
// dirはスナップショットファイルを置くディレクトリ。
func NewCompactor(store Store, dir string, m CompactionMetrics, logger *slog.Logger) *Compactor {
	return &Compactor{
		store:   store,
		dir:     dir,
		metrics: m,
		logger:  logger,
	}
}

// Compact はdatasetのスナップショットにrecordsをマージする。
// keyFieldは既存行からキーを読み取るためのJSONフィールド名。
// recordsが空の場合は何もしない。
func (c *Compactor) Compact(ctx context.Context, dataset, keyField string, records []Record) error {
	if len(records) == 0 {
		c.logger.Info("新規レコードがないためコンパクションをスキップします",
			slog.String("dataset", dataset),
		)
		return nil
	}

	total, err := c.compact(ctx, dataset, keyField, records)
	if err != nil {
		c.metrics.RecordCompactionRun(dataset, false)
		return fmt.Errorf("snapshot compaction failed for %s: %w", dataset, err)
	}

	c.metrics.RecordCompactionRun(dataset, true)
	c.metrics.RecordSnapshotRecords(dataset, total)
	c.logger.Info("スナップショットのコンパクションが完了しました",
		slog.String("dataset", dataset),
		slog.Int("new_records", len(records)),
		slog.Int("total_records", total),
	)
	return nil
}

func (c *Compactor) compact(ctx context.Context, dataset, keyField string, records []Record) (int, error) {
	// 新レコードを先に直列化する。同一キーは後勝ち。
	newLines := make([][]byte, 0, len(records))
	newIndex := make(map[string]int, len(records))
	for _, rec := range records {
		line, err := json.Marshal(rec.Data)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal record %q: %w", rec.Key, err)
		}
		if i, ok := newIndex[rec.Key]; ok {
			newLines[i] = line
			continue
		}
		newIndex[rec.Key] = len(newLines)
		newLines = append(newLines, line)
	}

	finalPath := path.Join(c.dir, dataset+".json")
	tmpPath := finalPath + ".tmp"

	out, err := c.store.Create(ctx, tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	// 失敗経路では一時ファイルを残さない
	cleanup := func() {
		out.Close()
		if rmErr := c.store.Remove(ctx, tmpPath); rmErr != nil {
			c.logger.Warn("一時スナップショットの削除に失敗しました",
				slog.String("path", tmpPath),
				slog.String("error", rmErr.Error()),
			)
		}
	}

	w := bufio.NewWriter(out)
	total := 0

	carried, err := c.carryPrevious(ctx, finalPath, keyField, newIndex, w)
	if err != nil {
		cleanup()
		return 0, err
	}
	total += carried

	for _, line := range newLines {
		if _, err := w.Write(line); err != nil {
			cleanup()
			return 0, fmt.Errorf("failed to write snapshot line: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			cleanup()
			return 0, fmt.Errorf("failed to write snapshot line: %w", err)
		}
		total++
	}

	if err := w.Flush(); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		c.store.Remove(ctx, tmpPath)
		return 0, fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := c.store.Replace(ctx, tmpPath, finalPath); err != nil {
		c.store.Remove(ctx, tmpPath)
		return 0, err
	}
	return total, nil
}

// carryPrevious は既存スナップショットを走査し、新レコードに
// 置き換えられない行をそのまま書き出す。引き継いだ行数を返す。
// 行はバイト単位で変更しない（再直列化によるキー順や空白の揺れを
// 発生させないため）。
func (c *Compactor) carryPrevious(
	ctx context.Context,
	finalPath, keyField string,
	newIndex map[string]int,
	w *bufio.Writer,
) (int, error) {
	exists, err := c.store.Exists(ctx, finalPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat previous snapshot: %w", err)
	}
	if !exists {
		return 0, nil
	}

	prev, err := c.store.Open(ctx, finalPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open previous snapshot: %w", err)
	}
	defer prev.Close()

	scanner := bufio.NewScanner(prev)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	carried := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		key, ok := extractKey(line, keyField)
		if ok {
			if _, superseded := newIndex[key]; superseded {
				continue
			}
		} else {
			// キーを読めない行は捨てずに引き継ぐ
			c.logger.Warn("スナップショット行のキーを読み取れませんでした",
				slog.String("path", finalPath),
				slog.String("key_field", keyField),
			)
		}
		if _, err := w.Write(line); err != nil {
			return 0, fmt.Errorf("failed to carry snapshot line: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return 0, fmt.Errorf("failed to carry snapshot line: %w", err)
		}
		carried++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read previous snapshot: %w", err)
	}
	return carried, nil
}

// extractKey は行JSONからkeyFieldの文字列値を取り出す。
func extractKey(line []byte, keyField string) (string, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(line, &probe); err != nil {
		return "", false
	}
	raw, ok := probe[keyField]
	if !ok {
		return "", false
	}
	var key string
	if err := json.Unmarshal(raw, &key); err != nil {
		return "", false
	}
	return key, true
}

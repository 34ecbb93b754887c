// Package archive exports the fact log to a blob store as one JSON segment
// per transaction and replays those segments into an empty connection.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"txkit/internal/blob"
	"txkit/internal/logging"
	"txkit/pkg/domain"
)

// DefaultPrefix is the key prefix segments are written under.
const DefaultPrefix = "log"

// ErrTargetNotEmpty is returned when restoring into a connection that
// already holds facts.
var ErrTargetNotEmpty = errors.New("archive: restore target is not empty")

// Segment is the archived form of one transaction.
type Segment struct {
	Tx      domain.EntityID `json:"tx"`
	Instant time.Time       `json:"instant"`
	Datoms  []SegmentDatom  `json:"datoms"`
}

// SegmentDatom is a datom whose value keeps its type tag.
type SegmentDatom struct {
	E     domain.EntityID `json:"e"`
	A     string          `json:"a"`
	V     json.RawMessage `json:"v"`
	Added bool            `json:"added"`
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(a *Archiver) {
		if p := strings.Trim(prefix, "/"); p != "" {
			a.prefix = p
		}
	}
}

// WithLogger sets the archiver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Archiver moves transaction segments between a snapshot and a blob store.
type Archiver struct {
	store  blob.Store
	prefix string
	logger *slog.Logger
}

// New constructs an Archiver writing to store.
func New(store blob.Store, opts ...Option) *Archiver {
	a := &Archiver{store: store, prefix: DefaultPrefix, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Key returns the blob key of the segment for tx. Zero padding keeps
// lexical and numeric order aligned.
func (a *Archiver) Key(tx domain.EntityID) string {
	return fmt.Sprintf("%s/tx-%020d.json", a.prefix, int64(tx))
}

// ExportReport summarises an export.
type ExportReport struct {
	Written int
	Skipped int
	Last    domain.EntityID
}

// Export writes a segment for every transaction in snap that is not yet
// archived. Running it repeatedly against a growing log is incremental.
func (a *Archiver) Export(ctx context.Context, snap domain.Snapshot) (ExportReport, error) {
	existing, err := a.store.List(ctx, a.prefix+"/")
	if err != nil {
		return ExportReport{}, fmt.Errorf("list segments: %w", err)
	}
	have := make(map[string]struct{}, len(existing))
	for _, info := range existing {
		have[info.Key] = struct{}{}
	}

	segs, err := segments(snap.Log())
	if err != nil {
		return ExportReport{}, err
	}
	var report ExportReport
	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Last = seg.Tx
		key := a.Key(seg.Tx)
		if _, ok := have[key]; ok {
			report.Skipped++
			continue
		}
		body, err := json.Marshal(seg)
		if err != nil {
			return report, fmt.Errorf("encode segment %d: %w", seg.Tx, err)
		}
		_, err = a.store.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"tx": fmt.Sprint(int64(seg.Tx))},
		})
		if errors.Is(err, blob.ErrExists) {
			report.Skipped++
			continue
		}
		if err != nil {
			return report, fmt.Errorf("write segment %d: %w", seg.Tx, err)
		}
		report.Written++
	}
	a.logger.Info("archive export complete", "prefix", a.prefix, "written", report.Written, "skipped", report.Skipped, "last_tx", report.Last)
	return report, nil
}

func segments(log []domain.Datom) ([]Segment, error) {
	var out []Segment
	for _, d := range log {
		if len(out) == 0 || out[len(out)-1].Tx != d.Tx {
			out = append(out, Segment{Tx: d.Tx})
		}
		seg := &out[len(out)-1]
		if d.Entity == d.Tx && d.Attribute == domain.AttrTxInstant {
			if t, ok := d.Value.(time.Time); ok {
				seg.Instant = t
			}
		}
		v, err := domain.EncodeValue(d.Value)
		if err != nil {
			return nil, fmt.Errorf("encode segment %d: %w", d.Tx, err)
		}
		seg.Datoms = append(seg.Datoms, SegmentDatom{E: d.Entity, A: d.Attribute, V: v, Added: d.Added})
	}
	return out, nil
}

// VerifyReport lists transactions whose segment is absent or carries
// another transaction's id in its metadata.
type VerifyReport struct {
	Checked    int
	Missing    []domain.EntityID
	Mismatched []domain.EntityID
}

// OK reports whether every checked transaction is archived.
func (r VerifyReport) OK() bool {
	return len(r.Missing) == 0 && len(r.Mismatched) == 0
}

// Verify checks that every transaction in snap has a segment in the store.
// It reads blob metadata only.
func (a *Archiver) Verify(ctx context.Context, snap domain.Snapshot) (VerifyReport, error) {
	var report VerifyReport
	var last domain.EntityID
	for _, d := range snap.Log() {
		if d.Tx == last {
			continue
		}
		last = d.Tx
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		info, err := a.store.Head(ctx, a.Key(d.Tx))
		switch {
		case errors.Is(err, blob.ErrNotFound):
			report.Missing = append(report.Missing, d.Tx)
		case err != nil:
			return report, fmt.Errorf("head segment %d: %w", d.Tx, err)
		case info.Metadata["tx"] != "" && info.Metadata["tx"] != fmt.Sprint(int64(d.Tx)):
			report.Mismatched = append(report.Mismatched, d.Tx)
		}
	}
	a.logger.Info("archive verify complete", "prefix", a.prefix, "checked", report.Checked, "missing", len(report.Missing), "mismatched", len(report.Mismatched))
	return report, nil
}

// Restore replays every archived segment, in transaction order, into conn.
// Archived entity ids are re-minted through placeholders; the returned map
// sends each archived id (transactions included) to its id in conn.
func (a *Archiver) Restore(ctx context.Context, conn domain.Connection) (map[domain.EntityID]domain.EntityID, error) {
	if conn.Db().Len() > 0 {
		return nil, ErrTargetNotEmpty
	}
	infos, err := a.store.List(ctx, a.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	mapping := make(map[domain.EntityID]domain.EntityID)
	for _, info := range infos {
		seg, err := a.readSegment(ctx, info.Key)
		if err != nil {
			return mapping, err
		}
		req, pending, err := replayRequest(seg, mapping)
		if err != nil {
			return mapping, fmt.Errorf("segment %s: %w", info.Key, err)
		}
		if len(req.Operations) == 0 {
			a.logger.Debug("segment has no facts", "key", info.Key)
			continue
		}
		res, err := conn.Transact(ctx, req)
		if err != nil {
			return mapping, fmt.Errorf("replay segment %s: %w", info.Key, err)
		}
		for placeholder, archived := range pending {
			id, err := res.Resolve(placeholder)
			if err != nil {
				return mapping, err
			}
			mapping[archived] = id
		}
		mapping[seg.Tx] = res.Tx()
		a.logger.Debug("segment restored", "key", info.Key, "tx", res.Tx(), "archived_tx", seg.Tx)
	}
	a.logger.Info("archive restore complete", "prefix", a.prefix, "segments", len(infos))
	return mapping, nil
}

func (a *Archiver) readSegment(ctx context.Context, key string) (Segment, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return Segment{}, fmt.Errorf("read segment %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	if err != nil {
		return Segment{}, fmt.Errorf("read segment %s: %w", key, err)
	}
	var seg Segment
	if err := json.Unmarshal(body, &seg); err != nil {
		return Segment{}, fmt.Errorf("decode segment %s: %w", key, err)
	}
	return seg, nil
}

// replayRequest rebuilds the operations of seg against mapping. The
// transaction's own db/ datoms are regenerated by the store and skipped.
func replayRequest(seg Segment, mapping map[domain.EntityID]domain.EntityID) (domain.Request, map[domain.EntityID]domain.EntityID, error) {
	pending := make(map[domain.EntityID]domain.EntityID)
	local := make(map[domain.EntityID]domain.EntityID)
	target := func(archived domain.EntityID) domain.EntityID {
		if id, ok := mapping[archived]; ok {
			return id
		}
		if p, ok := local[archived]; ok {
			return p
		}
		p := domain.NewTempID()
		local[archived] = p
		pending[p] = archived
		return p
	}

	var req domain.Request
	for _, d := range seg.Datoms {
		if strings.HasPrefix(d.A, "db/") {
			continue
		}
		v, err := domain.DecodeValue(d.V)
		if err != nil {
			return domain.Request{}, nil, err
		}
		if ref, ok := v.(domain.EntityID); ok {
			v = target(ref)
		}
		e := target(d.E)
		if d.Added {
			req.Operations = append(req.Operations, domain.Assert(e, d.A, v))
		} else {
			req.Operations = append(req.Operations, domain.Retract(e, d.A, v))
		}
	}
	return req, pending, nil
}

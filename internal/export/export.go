// CLAUDE:SUMMARY JSONL debate transcript export: one header line, one line per argument, participants anonymized per export
// Package export writes debate transcripts as JSONL for dataset use.
package export

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hazyhaar/debatehub/internal/db"
)

const Version = "1.0"

// Store is the read access an export needs.
type Store interface {
	GetDebate(ctx context.Context, id string) (*db.Debate, error)
	ListArguments(ctx context.Context, debateID string) ([]*db.Argument, error)
	ListDebates(ctx context.Context, status string, limit int) ([]*db.Debate, error)
}

// DebateRecord is the first line of a transcript.
type DebateRecord struct {
	Type        string     `json:"type"`
	Version     string     `json:"export_version"`
	ExportedAt  string     `json:"exported_at"`
	DebateID    string     `json:"debate_id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	SideA       string     `json:"side_a,omitempty"`
	SideB       string     `json:"side_b,omitempty"`
	VotesA      int        `json:"votes_a"`
	VotesB      int        `json:"votes_b"`
	WinningSide string     `json:"winning_side,omitempty"`
	Arguments   int        `json:"arguments"`
}

// ArgumentRecord is one argument line.
type ArgumentRecord struct {
	Type      string    `json:"type"`
	DebateID  string    `json:"debate_id"`
	Round     int       `json:"round"`
	Side      db.Side   `json:"side"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Exporter struct {
	store Store
	now   func() time.Time
}

func NewExporter(store Store) *Exporter {
	return &Exporter{store: store, now: time.Now}
}

// ExportDebate writes the transcript of one debate. User ids never appear
// in the output; each participant gets a salted alias stable within this
// export only.
func (e *Exporter) ExportDebate(ctx context.Context, w io.Writer, debateID string) error {
	d, err := e.store.GetDebate(ctx, debateID)
	if err != nil {
		return fmt.Errorf("getting debate: %w", err)
	}
	args, err := e.store.ListArguments(ctx, debateID)
	if err != nil {
		return fmt.Errorf("listing arguments: %w", err)
	}

	anon := newAnonMap()
	header := DebateRecord{
		Type:        "debate",
		Version:     Version,
		ExportedAt:  e.now().UTC().Format(time.RFC3339),
		DebateID:    d.ID,
		Title:       d.Title,
		Category:    d.Category,
		Description: d.Description,
		Status:      d.Status,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		VotesA:      d.VotesA,
		VotesB:      d.VotesB,
		Arguments:   len(args),
	}
	if d.SideAUser != nil {
		header.SideA = anon.get(*d.SideAUser)
	}
	if d.SideBUser != nil {
		header.SideB = anon.get(*d.SideBUser)
	}
	if d.Winner != nil {
		if side, ok := d.SideOf(*d.Winner); ok {
			header.WinningSide = string(side)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(header); err != nil {
		return err
	}
	for _, a := range args {
		rec := ArgumentRecord{
			Type:      "argument",
			DebateID:  d.ID,
			Round:     a.Round,
			Side:      a.Side,
			Author:    anon.get(a.UserID),
			Content:   a.Content,
			CreatedAt: a.CreatedAt,
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// ExportCompleted writes every completed debate, newest first.
func (e *Exporter) ExportCompleted(ctx context.Context, w io.Writer, limit int) (int, error) {
	debates, err := e.store.ListDebates(ctx, db.StatusCompleted, limit)
	if err != nil {
		return 0, err
	}
	for i, d := range debates {
		if err := e.ExportDebate(ctx, w, d.ID); err != nil {
			return i, err
		}
	}
	return len(debates), nil
}

// anonMap maps real user ids to salted aliases within one export.
type anonMap struct {
	mapping map[string]string
	salt    string
}

func newAnonMap() *anonMap {
	salt := make([]byte, 16)
	rand.Read(salt)
	return &anonMap{mapping: make(map[string]string), salt: hex.EncodeToString(salt)}
}

func (m *anonMap) get(realID string) string {
	if alias, ok := m.mapping[realID]; ok {
		return alias
	}
	sum := sha256.Sum256([]byte(m.salt + realID))
	alias := "anon_" + hex.EncodeToString(sum[:6])
	m.mapping[realID] = alias
	return alias
}

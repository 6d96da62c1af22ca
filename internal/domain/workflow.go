package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Player struct {
	PlayerID           int    `json:"playerId"`
	Designation        string `json:"designation"`
	AccessLevel        string `json:"accessLevel"`
	AccessCode         int    `json:"accessCode"`
	Status             string `json:"status"`
	PrevPlayerID       *int   `json:"prevPlayerId"`
	NextPlayerID       *int   `json:"nextPlayerId"`
	CanPull            bool   `json:"canPull"`
	CanForwardToPlayer bool   `json:"canForwardToPlayer"`
	CanReturnToPlayer  bool   `json:"canReturnToPlayer"`
	CanReturnToCitizen bool   `json:"canReturnToCitizen"`
	CanSanction        bool   `json:"canSanction"`
	CompletedAt        string `json:"completedAt,omitempty"`
}

// Holds reports whether the officer occupies this step.
func (p Player) Holds(o Officer) bool {
	return p.Designation == o.Role &&
		strings.EqualFold(p.AccessLevel, o.AccessLevel) &&
		p.AccessCode == o.AccessCode
}

// Workflow is the ordered list of players an application travels through.
type Workflow []Player

func IntPtr(v int) *int { return &v }

// ParseWorkflow decodes a stored workflow. Any decoding problem is reported as
// ErrCorruptWorkflow.
func ParseWorkflow(raw string) (Workflow, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty", ErrCorruptWorkflow)
	}
	var wf Workflow
	if err := json.Unmarshal([]byte(raw), &wf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptWorkflow, err)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

func (w Workflow) JSON() (string, error) {
	if w == nil {
		w = Workflow{}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Validate checks structural consistency: ids match positions and links stay in range.
func (w Workflow) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: no players", ErrCorruptWorkflow)
	}
	for i, p := range w {
		if p.PlayerID != i {
			return fmt.Errorf("%w: player %d has id %d", ErrCorruptWorkflow, i, p.PlayerID)
		}
		if strings.TrimSpace(p.Designation) == "" {
			return fmt.Errorf("%w: player %d has no designation", ErrCorruptWorkflow, i)
		}
		if p.PrevPlayerID != nil && (*p.PrevPlayerID < 0 || *p.PrevPlayerID >= len(w) || *p.PrevPlayerID == i) {
			return fmt.Errorf("%w: player %d prevPlayerId %d out of range", ErrCorruptWorkflow, i, *p.PrevPlayerID)
		}
		if p.NextPlayerID != nil && (*p.NextPlayerID < 0 || *p.NextPlayerID >= len(w) || *p.NextPlayerID == i) {
			return fmt.Errorf("%w: player %d nextPlayerId %d out of range", ErrCorruptWorkflow, i, *p.NextPlayerID)
		}
	}
	return nil
}

// CheckCurrent validates the current player index against the workflow.
func (w Workflow) CheckCurrent(current int) error {
	if current < 0 || current >= len(w) {
		return fmt.Errorf("%w: current player %d out of range (%d players)", ErrCorruptWorkflow, current, len(w))
	}
	return nil
}

// Next returns the successor of the player at idx.
func (w Workflow) Next(idx int) (int, bool) {
	if idx < 0 || idx >= len(w) {
		return 0, false
	}
	if n := w[idx].NextPlayerID; n != nil {
		return *n, true
	}
	if idx+1 < len(w) {
		return idx + 1, true
	}
	return 0, false
}

// Prev returns the predecessor of the player at idx.
func (w Workflow) Prev(idx int) (int, bool) {
	if idx < 0 || idx >= len(w) {
		return 0, false
	}
	if p := w[idx].PrevPlayerID; p != nil {
		return *p, true
	}
	if idx > 0 {
		return idx - 1, true
	}
	return 0, false
}

// Predecessor is Prev skipping players that shifted the application away.
func (w Workflow) Predecessor(idx int) (int, bool) {
	p, ok := w.Prev(idx)
	for hops := 0; ok && w[p].Status == StatusShifted && hops < len(w); hops++ {
		p, ok = w.Prev(p)
	}
	if ok && w[p].Status == StatusShifted {
		return 0, false
	}
	return p, ok
}

// Clone returns a deep copy so transitions never alias stored state.
func (w Workflow) Clone() Workflow {
	if w == nil {
		return nil
	}
	out := make(Workflow, len(w))
	for i, p := range w {
		if p.PrevPlayerID != nil {
			p.PrevPlayerID = IntPtr(*p.PrevPlayerID)
		}
		if p.NextPlayerID != nil {
			p.NextPlayerID = IntPtr(*p.NextPlayerID)
		}
		out[i] = p
	}
	return out
}

// InsertAfter places p directly after idx, renumbering later players and
// rewriting links so the chain stays intact.
func (w Workflow) InsertAfter(idx int, p Player) Workflow {
	out := make(Workflow, 0, len(w)+1)
	shift := func(ref *int) *int {
		if ref == nil {
			return nil
		}
		if *ref > idx {
			return IntPtr(*ref + 1)
		}
		return IntPtr(*ref)
	}
	for i, cur := range w.Clone() {
		cur.PrevPlayerID = shift(cur.PrevPlayerID)
		cur.NextPlayerID = shift(cur.NextPlayerID)
		if i > idx {
			cur.PlayerID = i + 1
		}
		out = append(out, cur)
		if i == idx {
			out = append(out, p)
		}
	}
	inserted := idx + 1
	out[inserted].PlayerID = inserted
	out[inserted].PrevPlayerID = IntPtr(idx)
	out[inserted].NextPlayerID = out[idx].NextPlayerID
	if out[idx].NextPlayerID == nil && inserted+1 < len(out) {
		out[inserted].NextPlayerID = IntPtr(inserted + 1)
	}
	if n := out[inserted].NextPlayerID; n != nil {
		out[*n].PrevPlayerID = IntPtr(inserted)
	}
	out[idx].NextPlayerID = IntPtr(inserted)
	return out
}

// Instantiate builds a fresh application workflow from a service template.
// codeFor resolves the access code for each access level.
func (w Workflow) Instantiate(codeFor func(level string) (int, error)) (Workflow, error) {
	if len(w) == 0 {
		return nil, fmt.Errorf("%w: template has no players", ErrCorruptWorkflow)
	}
	out := w.Clone()
	for i := range out {
		code, err := codeFor(out[i].AccessLevel)
		if err != nil {
			return nil, err
		}
		out[i].PlayerID = i
		out[i].AccessCode = code
		out[i].Status = StatusNotReached
		out[i].CompletedAt = ""
	}
	out[0].Status = StatusPending
	return out, nil
}

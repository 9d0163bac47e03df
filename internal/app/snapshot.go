package app

import (
	"crmapp/internal/backend"
	"crmapp/internal/models"
)

// Snapshot is the transient copy of backend data the views are projected
// from. A reload replaces it entirely.
type Snapshot struct {
	Loaded     bool
	User       models.User
	Workspaces []models.Workspace
	Stats      models.Stats
	Workspace  models.Workspace
	Funnels    []models.Funnel
	Tasks      []models.Task
	Members    []models.Member
	Notes      []models.Note
}

func (s *Snapshot) setUser(u backend.UserSnapshot) {
	s.User = u.User
	s.Workspaces = u.Workspaces
	s.Stats = u.Stats
}

func (s *Snapshot) setWorkspace(ws backend.WorkspaceSnapshot) {
	s.Loaded = true
	s.Workspace = ws.Workspace
	// The workspace call does not know the caller's membership.
	if listed, ok := s.workspace(ws.Workspace.ID); ok {
		s.Workspace.Role = listed.Role
		s.Workspace.CustomRole = listed.CustomRole
		s.Workspace.Permissions = listed.Permissions
	}
	s.Funnels = ws.Funnels
	s.Tasks = ws.Tasks
	s.Members = ws.Members
}

func (s Snapshot) workspace(id int64) (models.Workspace, bool) {
	for _, ws := range s.Workspaces {
		if ws.ID == id {
			return ws, true
		}
	}
	return models.Workspace{}, false
}

// Task returns the task with the given id.
func (s Snapshot) Task(id int64) (models.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

// Member returns the member with the given id.
func (s Snapshot) Member(id int64) (models.Member, bool) {
	for _, m := range s.Members {
		if m.ID == id {
			return m, true
		}
	}
	return models.Member{}, false
}

// Note returns the note with the given id.
func (s Snapshot) Note(id int64) (models.Note, bool) {
	for _, n := range s.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return models.Note{}, false
}

// NotesOn returns the notes dated d, newest first as listed by the backend.
func (s Snapshot) NotesOn(d string) []models.Note {
	var out []models.Note
	for _, n := range s.Notes {
		if n.NoteDate == d {
			out = append(out, n)
		}
	}
	return out
}

// Funnel returns the first funnel, the only one displayed.
func (s Snapshot) Funnel() (models.Funnel, bool) {
	if len(s.Funnels) == 0 {
		return models.Funnel{}, false
	}
	return s.Funnels[0], true
}

// applyTask merges a task returned by a mutation. It reports false when the
// task cannot be placed and a reload is needed instead.
func (s *Snapshot) applyTask(t models.Task) bool {
	if !s.Loaded {
		return false
	}
	if t.WorkspaceID != 0 && t.WorkspaceID != s.Workspace.ID {
		return false
	}
	if t.WorkspaceID == 0 {
		t.WorkspaceID = s.Workspace.ID
	}

	replaced := false
	for i, old := range s.Tasks {
		if old.ID != t.ID {
			continue
		}
		if old.Done() != t.Done() {
			if t.Done() {
				s.Stats.Done++
			} else {
				s.Stats.Done--
			}
		}
		s.Tasks[i] = t
		replaced = true
		break
	}
	if !replaced {
		s.Tasks = append(s.Tasks, t)
		s.Stats.Total++
		if t.Done() {
			s.Stats.Done++
		}
	}

	s.detachFromStages(t.ID)
	if t.StageID == nil {
		return true
	}
	for fi := range s.Funnels {
		for si := range s.Funnels[fi].Stages {
			stage := &s.Funnels[fi].Stages[si]
			if stage.ID == *t.StageID {
				stage.Tasks = append(stage.Tasks, t)
				return true
			}
		}
	}
	// Unknown stage: the funnel layout changed under us.
	return false
}

// removeTask drops a deleted task everywhere it is referenced.
func (s *Snapshot) removeTask(id int64) bool {
	if !s.Loaded {
		return false
	}
	for i, t := range s.Tasks {
		if t.ID != id {
			continue
		}
		s.Tasks = append(s.Tasks[:i:i], s.Tasks[i+1:]...)
		s.Stats.Total--
		if t.Done() {
			s.Stats.Done--
		}
		break
	}
	s.detachFromStages(id)
	return true
}

func (s *Snapshot) detachFromStages(id int64) {
	for fi := range s.Funnels {
		for si := range s.Funnels[fi].Stages {
			stage := &s.Funnels[fi].Stages[si]
			kept := stage.Tasks[:0:0]
			for _, t := range stage.Tasks {
				if t.ID != id {
					kept = append(kept, t)
				}
			}
			stage.Tasks = kept
		}
	}
}

package tasksync

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/remote"
	"github.com/sandeepkv93/optixflow/internal/state"
)

func (e *Engine) AddProject(ctx context.Context, name, color string) Receipt {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()

	p := model.Project{ID: e.newID(), Name: name, Color: color}
	e.w.Mutate(func(d *state.Data) {
		d.Projects = append(d.Projects, p)
		d.SetStatus(p.ID, e.initialStatus(sess))
	})

	if sess == nil {
		st, err := e.settleLocal("add project", p.ID)
		return Receipt{ID: p.ID, Status: st, Err: err}
	}

	row := remote.ProjectToRow(p, sess.UserID)
	row.ID = ""
	inserted, err := e.backend.InsertProject(ctx, row)
	var canonical model.Project
	if err == nil {
		canonical, err = remote.DecodeProject(inserted)
	}
	if err != nil {
		return Receipt{ID: p.ID, Status: e.settleRemote("add project", err, p.ID), Err: err}
	}

	var retagged []string
	e.w.Mutate(func(d *state.Data) {
		i := d.ProjectIndex(p.ID)
		if i < 0 {
			return
		}
		d.Projects[i] = canonical
		d.ClearStatus(p.ID)
		d.SetStatus(canonical.ID, state.SyncConfirmed)
		if d.ActiveProjectID != nil && *d.ActiveProjectID == p.ID {
			d.ActiveProjectID = model.StringPtr(canonical.ID)
		}
		for j := range d.Tasks {
			if d.Tasks[j].InProject(p.ID) {
				d.Tasks[j].ProjectID = model.StringPtr(canonical.ID)
				retagged = append(retagged, d.Tasks[j].ID)
			}
		}
	})
	if len(retagged) > 0 {
		err := e.backend.UpdateTasks(ctx, sess.UserID, retagged, remote.Fields{remote.ColProjectID: model.StringPtr(canonical.ID)})
		e.settleRemote("retag project tasks", err, retagged...)
	}
	return Receipt{ID: canonical.ID, Status: state.SyncConfirmed}
}

// UpdateProject merges patch locally and, when authenticated, merges the
// backend's returned row back in.
func (e *Engine) UpdateProject(ctx context.Context, projectID string, patch model.ProjectPatch) Receipt {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()

	found := false
	e.w.Mutate(func(d *state.Data) {
		i := d.ProjectIndex(projectID)
		if i < 0 {
			return
		}
		found = true
		d.Projects[i] = patch.Apply(d.Projects[i])
		d.SetStatus(projectID, e.initialStatus(sess))
	})
	if !found {
		return Receipt{ID: projectID, Status: state.SyncFailed, Err: fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)}
	}

	if sess == nil {
		st, err := e.settleLocal("update project", projectID)
		return Receipt{ID: projectID, Status: st, Err: err}
	}
	fields := remote.ProjectPatchFields(patch)
	if len(fields) == 0 {
		e.setStatus(state.SyncLocal, projectID)
		return Receipt{ID: projectID, Status: state.SyncLocal}
	}
	row, err := e.backend.UpdateProject(ctx, sess.UserID, projectID, fields)
	var canonical model.Project
	if err == nil {
		canonical, err = remote.DecodeProject(row)
	}
	if err != nil {
		return Receipt{ID: projectID, Status: e.settleRemote("update project", err, projectID), Err: err}
	}
	e.w.Mutate(func(d *state.Data) {
		if i := d.ProjectIndex(projectID); i >= 0 {
			d.Projects[i] = canonical
		}
		d.SetStatus(projectID, state.SyncConfirmed)
	})
	return Receipt{ID: projectID, Status: state.SyncConfirmed}
}

// DeleteProject removes the project and unassigns its tasks; tasks are
// never deleted. The local cascade stands regardless of the backend outcome.
func (e *Engine) DeleteProject(ctx context.Context, projectID string) Receipt {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()

	var (
		found    bool
		affected []string
	)
	e.w.Mutate(func(d *state.Data) {
		if i := d.ProjectIndex(projectID); i >= 0 {
			found = true
			d.Projects = append(d.Projects[:i:i], d.Projects[i+1:]...)
			d.ClearStatus(projectID)
		}
		for j := range d.Tasks {
			if d.Tasks[j].InProject(projectID) {
				d.Tasks[j].ProjectID = nil
				affected = append(affected, d.Tasks[j].ID)
				d.SetStatus(d.Tasks[j].ID, e.initialStatus(sess))
			}
		}
		if d.ActiveProjectID != nil && *d.ActiveProjectID == projectID {
			d.ActiveProjectID = nil
		}
	})
	if !found && len(affected) == 0 {
		return Receipt{ID: projectID, Status: state.SyncFailed, Err: fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)}
	}

	if sess == nil {
		st, err := e.settleLocal("delete project", affected...)
		return Receipt{ID: projectID, Status: st, Err: err, Cascaded: affected}
	}

	delErr := e.backend.DeleteProject(ctx, sess.UserID, projectID)
	if delErr != nil {
		e.logFailure("delete project", delErr, projectID)
	}
	var clearErr error
	if len(affected) > 0 {
		clearErr = e.backend.UpdateTasks(ctx, sess.UserID, affected, remote.Fields{remote.ColProjectID: (*string)(nil)})
		e.settleRemote("unassign project tasks", clearErr, affected...)
	}
	err := errors.Join(delErr, clearErr)
	status := state.SyncConfirmed
	if err != nil {
		status = state.SyncFailed
	}
	return Receipt{ID: projectID, Status: status, Err: err, Cascaded: affected}
}

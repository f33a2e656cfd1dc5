package host

import (
	"fmt"
	"strings"

	"github.com/scstools/compellent/shared"
	"github.com/scstools/compellent/shared/logger"
)

// DeletionPlan is the computed outcome of a device deletion request.
// Flush holds the multipath aliases to flush, Delete the disks to remove and
// Blocked the requested devices that were excluded because they are
// protected. All three are sorted.
type DeletionPlan struct {
	Flush   []string
	Delete  []string
	Blocked []string
}

// Empty reports whether the plan has nothing to do.
func (p *DeletionPlan) Empty() bool {
	return len(p.Flush) == 0 && len(p.Delete) == 0
}

// String renders the plan for operator confirmation.
func (p *DeletionPlan) String() string {
	var parts []string
	if len(p.Flush) > 0 {
		parts = append(parts, "aliases: "+strings.Join(p.Flush, " "))
	}

	if len(p.Delete) > 0 {
		parts = append(parts, "disks: "+strings.Join(p.Delete, " "))
	}

	if len(p.Blocked) > 0 {
		parts = append(parts, "blocked: "+strings.Join(p.Blocked, " "))
	}

	if len(parts) == 0 {
		return "nothing to delete"
	}

	return strings.Join(parts, ", ")
}

// ComputeDeletionPlan expands the requested disks and aliases into a full
// deletion plan. Any requested disk that is a member of a multipath alias
// pulls in that alias and all its sibling member disks, so a multipath
// device can never be deleted partially. Protected devices are subtracted
// from the selection and reported as blocked rather than silently dropped.
func ComputeDeletionPlan(disks []string, aliases []string, members map[string][]string, protected map[string]bool) *DeletionPlan {
	selectedDisks := map[string]bool{}
	for _, disk := range disks {
		selectedDisks[disk] = true
	}

	selectedAliases := map[string]bool{}
	for _, alias := range aliases {
		selectedAliases[alias] = true
	}

	// Expand disks that are part of a multipath device to the whole device.
	for _, disk := range disks {
		for alias, group := range members {
			if !shared.ValueInSlice(disk, group) {
				continue
			}

			logger.Info("Disk is part of a multipath device, adding its siblings", logger.Ctx{"disk": disk, "alias": alias})
			selectedAliases[alias] = true
			for _, sibling := range group {
				selectedDisks[sibling] = true
			}
		}
	}

	// Member disks of every selected alias are deleted along with it.
	for alias := range selectedAliases {
		for _, disk := range members[alias] {
			selectedDisks[disk] = true
		}
	}

	// Subtract the protected set, reporting what was excluded.
	blocked := map[string]bool{}
	for alias := range selectedAliases {
		if protected[alias] {
			blocked[alias] = true
			delete(selectedAliases, alias)
		}
	}

	for disk := range selectedDisks {
		if protected[disk] {
			blocked[disk] = true
			delete(selectedDisks, disk)
		}
	}

	return &DeletionPlan{
		Flush:   sortedKeys(selectedAliases),
		Delete:  sortedKeys(selectedDisks),
		Blocked: sortedKeys(blocked),
	}
}

// PlanDeletion probes the live host state and computes the deletion plan for
// the requested disks and aliases.
func PlanDeletion(r Runner, disks []string, aliases []string) (*DeletionPlan, error) {
	members, err := AliasMembers(r)
	if err != nil {
		return nil, err
	}

	protected, err := ProtectedDevices(r, members)
	if err != nil {
		return nil, err
	}

	return ComputeDeletionPlan(disks, aliases, members, protected), nil
}

// ApplyDeletionPlan flushes the planned multipath aliases and deletes the
// planned disks. The apply is best-effort: a failure on one device never
// blocks processing of the remaining devices and all failures are collected
// into a single PartialFailure.
func ApplyDeletionPlan(r Runner, plan *DeletionPlan) error {
	var failures []error

	for _, alias := range plan.Flush {
		logger.Info("Flushing multipath device", logger.Ctx{"alias": alias})

		_, err := r.Run("multipath", "-f", alias)
		if err != nil {
			failures = append(failures, fmt.Errorf("Cannot flush multipath device %q: %w", alias, err))
		}
	}

	for _, disk := range plan.Delete {
		logger.Info("Deleting disk", logger.Ctx{"disk": disk})

		err := r.WriteFile(fmt.Sprintf("/sys/block/%s/device/state", disk), "offline\n")
		if err != nil {
			failures = append(failures, fmt.Errorf("Cannot offline disk %q: %w", disk, err))
			continue
		}

		err = r.WriteFile(fmt.Sprintf("/sys/block/%s/device/delete", disk), "1\n")
		if err != nil {
			failures = append(failures, fmt.Errorf("Cannot delete disk %q: %w", disk, err))
		}
	}

	if len(failures) > 0 {
		return &PartialFailure{Failures: failures}
	}

	return nil
}

// PartialFailure aggregates the errors of a best-effort batch operation.
type PartialFailure struct {
	Failures []error
}

func (e *PartialFailure) Error() string {
	messages := make([]string, len(e.Failures))
	for i, err := range e.Failures {
		messages[i] = err.Error()
	}

	return fmt.Sprintf("%d of the requested operations failed: %s", len(e.Failures), strings.Join(messages, "; "))
}

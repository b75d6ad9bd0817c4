package rbac

// Level is a hierarchy rank. 0 is the highest authority; larger values rank lower.
type Level int

const (
	// LevelUndefined marks a missing level. Comparisons against it always deny.
	LevelUndefined Level = -1
	// LevelSuperAdmin is reserved for the super_admin system role.
	LevelSuperAdmin Level = 0
	// MaxLevel is the lowest rank a role may hold.
	MaxLevel Level = 100
)

// Defined reports whether l is a usable rank.
func (l Level) Defined() bool {
	return l >= LevelSuperAdmin && l <= MaxLevel
}

// CanManage reports whether an actor at actorLevel may manage a target at
// targetLevel. Equal levels never suffice.
func CanManage(actorLevel, targetLevel Level) bool {
	if !actorLevel.Defined() || !targetLevel.Defined() {
		return false
	}
	return actorLevel < targetLevel
}

// CanAssignRole reports whether an actor may hand out a role at roleLevel.
func CanAssignRole(actorLevel, roleLevel Level) bool {
	return CanManage(actorLevel, roleLevel)
}

// ValidateCustomLevel checks the level of a role created after bootstrap.
// Level 0 belongs to super_admin alone.
func ValidateCustomLevel(l Level) error {
	if l <= LevelSuperAdmin || l > MaxLevel {
		return Newf(ErrInvalidLevel, "level %d outside 1..%d", l, MaxLevel)
	}
	return nil
}

// CanManagePrincipal compares two authenticated principals. A principal never
// manages itself.
func CanManagePrincipal(actor, target AuthContext) bool {
	if actor.Principal.ID == "" || actor.Principal.ID == target.Principal.ID {
		return false
	}
	return CanManage(actor.level(), target.level())
}

// ManagerLookup returns the manager of principalID, or "" for a root principal.
type ManagerLookup func(principalID string) (string, error)

// CheckNoCycle walks upward from proposedManagerID and fails with ErrCycleDetected
// if principalID is reached. maxDepth bounds the walk so a corrupted chain
// cannot loop forever; exceeding it is reported as a cycle.
func CheckNoCycle(principalID, proposedManagerID string, maxDepth int, managerOf ManagerLookup) error {
	if proposedManagerID == "" {
		return nil
	}
	if principalID == proposedManagerID {
		return Newf(ErrCycleDetected, "principal %s cannot manage itself", principalID)
	}
	current := proposedManagerID
	for depth := 0; current != ""; depth++ {
		if depth > maxDepth {
			return Newf(ErrCycleDetected, "manager chain above %s does not terminate", proposedManagerID)
		}
		next, err := managerOf(current)
		if err != nil {
			return err
		}
		if next == principalID {
			return Newf(ErrCycleDetected, "%s is an ancestor of %s", principalID, proposedManagerID)
		}
		current = next
	}
	return nil
}

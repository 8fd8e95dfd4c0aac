package pathsync

// Category is one independently confirmed group of changes.
type Category int

const (
	Additions Category = iota
	Modifications
	Deletions
)

func (c Category) String() string {
	switch c {
	case Additions:
		return "additions"
	case Modifications:
		return "modifications"
	case Deletions:
		return "deletions"
	default:
		return "unknown"
	}
}

// Confirmer decides whether a category of count changes is applied.
// Declining one category does not affect the others.
type Confirmer func(c Category, count int) bool

// AlwaysConfirm approves every category.
func AlwaysConfirm(Category, int) bool { return true }

package mir

import "fmt"

// Temp is an SSA value: either a function-local temporary produced by
// exactly one instruction, or a global variable reference (is_global),
// which is never in SSA form and is instead named by symbol on every
// load/store.
//
// PreColor records a physical register a temp is required to occupy,
// e.g. the register receiving a function's incoming argument or the one
// a Ret must place its value into before the epilogue. It is an ABI role
// name ("a0", "fa1", ...) rather than a concrete riscv.Reg so that this
// package has no dependency on the back end. No back-end stage reads
// it: internal/riscv/isel places arguments and return values in
// a0-a7/fa0-fa7 itself.
type Temp struct {
	ID       uint32
	Name     string
	Type     Type
	IsGlobal bool
	PreColor string
}

// String implements fmt.Stringer.
func (t Temp) String() string {
	if t.IsGlobal {
		return "@" + t.Name
	}
	return fmt.Sprintf("%%%d", t.ID)
}

// TempManager issues unique SSA temporaries for a single function. Each
// function owns exactly one TempManager; managers are never shared
// across functions (see spec §5, "shared-resource policy").
type TempManager struct {
	next uint32
}

// NewTempManager returns a manager seeded to start issuing ids at seed.
// The front end seeds this with the highest id already issued so fresh
// temps during optimization never collide with front-end-issued ones.
func NewTempManager(seed uint32) *TempManager {
	return &TempManager{next: seed}
}

// New allocates a fresh non-global temp of the given type.
func (m *TempManager) New(typ Type) Temp {
	id := m.next
	m.next++
	return Temp{ID: id, Name: fmt.Sprintf("%%%d", id), Type: typ}
}

// NewPreColored allocates a fresh temp pre-colored to the given ABI role.
func (m *TempManager) NewPreColored(typ Type, role string) Temp {
	t := m.New(typ)
	t.PreColor = role
	return t
}

// Global constructs the (non-counted) temp naming a global variable.
func Global(name string, typ Type) Temp {
	return Temp{Name: name, Type: typ, IsGlobal: true}
}

// HighestIssued returns one past the largest id this manager has handed
// out, suitable for seeding a fresh manager that must not collide.
func (m *TempManager) HighestIssued() uint32 {
	return m.next
}

// LabelManager issues unique basic-block labels for a single function.
type LabelManager struct {
	next uint32
}

// NewLabelManager returns a fresh label manager.
func NewLabelManager() *LabelManager {
	return &LabelManager{}
}

// New returns a fresh, unique label.
func (m *LabelManager) New() Label {
	id := m.next
	m.next++
	return Label(fmt.Sprintf("bb%d", id))
}

// Label names a basic block within a function.
type Label string

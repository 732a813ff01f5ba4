package recovery

import (
	"strings"

	"golang.org/x/exp/constraints"
)

// UndoType is a bitmask of operation kinds whose undo is pending for one
// object. An object can carry several kinds at once.
type UndoType uint32

const (
	UndoCreateDatabase UndoType = 1 << iota
	UndoDropDatabase
	UndoMount
	UndoUnmount
	UndoMoveDatabase
	UndoCreateArea
	UndoDropArea
	UndoAlterArea
	UndoAlterAreaInMount
	UndoCreateTable
	UndoDropTable
	UndoAlterTable
	UndoAlterTableInMount
	UndoRenameTable
	UndoCreateIndex
	UndoDropIndex
	UndoAlterIndex
	UndoAlterIndexInMount
	UndoRenameIndex
	UndoCreateCascade
	UndoDropCascade
	UndoCreateFunction
	UndoDropFunction
	UndoCreatePartition
	UndoDropPartition
	UndoCreatePrivilege
	UndoDropPrivilege
)

var undoTypeNames = []string{
	"CreateDatabase", "DropDatabase", "Mount", "Unmount", "MoveDatabase",
	"CreateArea", "DropArea", "AlterArea", "AlterAreaInMount",
	"CreateTable", "DropTable", "AlterTable", "AlterTableInMount", "RenameTable",
	"CreateIndex", "DropIndex", "AlterIndex", "AlterIndexInMount", "RenameIndex",
	"CreateCascade", "DropCascade", "CreateFunction", "DropFunction",
	"CreatePartition", "DropPartition", "CreatePrivilege", "DropPrivilege",
}

func (t UndoType) String() string {
	if t == 0 {
		return "None"
	}
	var parts []string
	for i, name := range undoTypeNames {
		if hasAll(t, UndoType(1)<<i) {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

func hasAll[T constraints.Unsigned](mask, bits T) bool {
	return mask&bits == bits
}

func setBits[T constraints.Unsigned](mask, bits T) T {
	return mask | bits
}

func clearBits[T constraints.Unsigned](mask, bits T) T {
	return mask &^ bits
}

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacore/pkg/dberror"
	"schemacore/pkg/log/logdata"
)

func grant(users []string, roles ...string) *GrantStmt {
	return &GrantStmt{RoleNames: roles, Users: users, Grant: true}
}

func revoke(users []string, roles ...string) *GrantStmt {
	return &GrantStmt{RoleNames: roles, Users: users}
}

func TestAddValue(t *testing.T) {
	assert.Equal(t, []uint32{1, 2, 4}, AddValue([]uint32{1, 2, 4}, nil))
	assert.Equal(t, []uint32{3, 2, 4}, AddValue([]uint32{1, 2, 4}, []uint32{2}))
	assert.Equal(t, []uint32{3, 2}, AddValue([]uint32{1}, []uint32{2, 2}))
}

func TestRemoveValue(t *testing.T) {
	v := []uint32{3, 2}
	assert.False(t, RemoveValue([]uint32{1}, v))
	assert.Equal(t, []uint32{2, 2}, v)

	assert.True(t, RemoveValue([]uint32{2, 2, 7}, v), "role longer than value")
	assert.Equal(t, []uint32{0, 0}, v)

	assert.True(t, RemoveValue(nil, []uint32{}))
}

func TestEqualValue(t *testing.T) {
	assert.True(t, equalValue([]uint32{1, 0, 0}, []uint32{1}))
	assert.False(t, equalValue([]uint32{1, 0, 2}, []uint32{1}))
	assert.True(t, equalValue(nil, []uint32{0, 0}))
}

func TestAlterPrivilege_GrantAndRevoke(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	p, err := m.AlterPrivilege(writeTxn(), db, grant([]string{"u42"}, "data_operations"))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int32(42), p.UserID())
	assert.Equal(t, []uint32{0, 0, PrivilegeAll, 0}, p.Value())
	assert.Equal(t, StatusPersistent, p.Status())

	got, err := db.PrivilegeOf(nil, 42)
	require.NoError(t, err)
	assert.Same(t, p, got)

	dropped, err := m.AlterPrivilege(writeTxn(), db, revoke([]string{"u42"}, "data_operations"))
	require.NoError(t, err)
	require.NotNil(t, dropped)
	assert.Equal(t, StatusReallyDeleted, dropped.Status())

	got, err = db.PrivilegeOf(nil, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	records, err := m.ReadLog()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(records), 2)
	last := records[len(records)-2:]
	assert.Equal(t, logdata.CreatePrivilege, last[0].Data.SubCategory())
	assert.Equal(t, logdata.DropPrivilege, last[1].Data.SubCategory())

	userID, err := PrivilegeUserID(last[1].Data)
	require.NoError(t, err)
	assert.Equal(t, int32(42), userID)
	value, err := PrivilegeValue(last[1].Data)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0, PrivilegeAll, 0}, value)
}

func TestAlterPrivilege_PartialRevoke(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	_, err := m.AlterPrivilege(writeTxn(), db, grant([]string{"u7"}, "data_operations", "reference_operations"))
	require.NoError(t, err)

	p, err := m.AlterPrivilege(writeTxn(), db, revoke([]string{"u7"}, "reference_operations"))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, []uint32{0, 0, PrivilegeAll, 0}, p.Value())
	assert.Equal(t, StatusPersistent, p.Status())

	records, err := m.ReadLog()
	require.NoError(t, err)
	rec := records[len(records)-1].Data
	assert.Equal(t, logdata.AlterPrivilege, rec.SubCategory())
	prev, err := PrivilegeValue(rec)
	require.NoError(t, err)
	post, err := PrivilegePostValue(rec)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0, PrivilegeAll, PrivilegeAll}, prev)
	assert.Equal(t, []uint32{0, 0, PrivilegeAll, 0}, post)

	db.AbandonCache()
	stored, err := db.PrivilegeOf(nil, 7)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []uint32{0, 0, PrivilegeAll, 0}, stored.Value())
}

func TestAlterPrivilege_NoChange(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	_, err := m.AlterPrivilege(writeTxn(), db, grant([]string{"u7"}, "data_operations"))
	require.NoError(t, err)
	lsn := m.log.CurrentLSN()

	p, err := m.AlterPrivilege(writeTxn(), db, grant([]string{"u7"}, "data_operations"))
	assert.NoError(t, err)
	assert.Nil(t, p, "granting a held role changes nothing")

	p, err = m.AlterPrivilege(writeTxn(), db, revoke([]string{"u42"}, "data_operations"))
	assert.NoError(t, err)
	assert.Nil(t, p, "revoking from a user without privilege changes nothing")
	assert.Equal(t, lsn, m.log.CurrentLSN())
}

func TestAlterPrivilege_Errors(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	tests := []struct {
		name string
		stmt *GrantStmt
		code string
	}{
		{"superuser", grant([]string{"root"}, "data_operations"), dberror.CodeNotSupported},
		{"several grantees", grant([]string{"u7", "u42"}, "data_operations"), dberror.CodeNotSupported},
		{"no grantee", grant(nil, "data_operations"), dberror.CodeBadArgument},
		{"unknown user", grant([]string{"nobody"}, "data_operations"), dberror.CodeNotFound},
		{"unknown role", grant([]string{"u7"}, "dba"), dberror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AlterPrivilege(writeTxn(), db, tt.stmt)
			assert.True(t, dberror.Is(err, tt.code), "%v", err)
		})
	}

	_, err := m.AlterPrivilege(readTxn(), db, grant([]string{"u7"}, "data_operations"))
	assert.True(t, dberror.Is(err, dberror.CodeReadOnlyTransaction))
}

func TestPrivilegeObjectType_Range(t *testing.T) {
	rec := func(v int32) *logdata.LogData {
		l := logdata.New(logdata.CreatePrivilege, "sales")
		l.AddID(3)
		l.AddInteger(7)
		l.AddInteger(v)
		return l
	}

	got, err := PrivilegeObjectType(rec(int32(ObjectTypeUnknown)))
	require.NoError(t, err)
	assert.Equal(t, ObjectTypeUnknown, got)

	_, err = PrivilegeObjectType(rec(int32(ObjectTypeUnknown) + 1))
	assert.True(t, dberror.Is(err, dberror.CodeLogItemCorrupted))
	_, err = PrivilegeObjectType(rec(-1))
	assert.True(t, dberror.Is(err, dberror.CodeLogItemCorrupted))
}

func TestPrivilege_Serialize(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	p, err := db.PrivilegeOf(nil, 0)
	require.NoError(t, err)
	require.NotNil(t, p)

	_, err = p.Serialize()
	assert.True(t, dberror.Is(err, dberror.CodeNotSupported))
}

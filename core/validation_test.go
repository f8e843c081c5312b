package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateUserRequest
		wantErr string
	}{
		{name: "valid default role", req: CreateUserRequest{Username: "j.doe"}},
		{name: "valid with password", req: CreateUserRequest{Username: "alice", Role: "Admin", Password: "correct-horse"}},
		{name: "too short", req: CreateUserRequest{Username: "ab"}, wantErr: "username must be at least 3 characters"},
		{name: "bad characters", req: CreateUserRequest{Username: "bad name"}, wantErr: "username may only contain"},
		{name: "bad role", req: CreateUserRequest{Username: "alice", Role: "root"}, wantErr: "role must be one of"},
		{name: "short password", req: CreateUserRequest{Username: "alice", Password: "short"}, wantErr: "password must be at least 8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Normalize()
			err := Validate(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCreateUserRequest_DefaultRole(t *testing.T) {
	req := CreateUserRequest{Username: "  bob "}
	req.Normalize()
	assert.Equal(t, "bob", req.Username)
	assert.Equal(t, RoleAnalyst, req.Role)
}

func TestExportRequest(t *testing.T) {
	req := ExportRequest{Format: " JSON "}
	req.Normalize("csv")
	assert.Equal(t, ExportFormatJSON, req.Format)
	assert.NoError(t, req.Validate())

	req = ExportRequest{}
	req.Normalize("")
	assert.Equal(t, ExportFormatCSV, req.Format)

	req = ExportRequest{Format: "xml"}
	req.Normalize("csv")
	assert.ErrorIs(t, req.Validate(), ErrInvalidExportFormat)

	assert.True(t, IsValidExportStatus(ExportStatusProcessing))
	assert.False(t, IsValidExportStatus("queued"))
}

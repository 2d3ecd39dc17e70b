package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsmm-world/userapi/internal/auth"
	"github.com/vsmm-world/userapi/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestUserDocument_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	user := types.User{
		ID:           types.NewUserID(),
		Name:         "Jane",
		Email:        "jane@x.io",
		PasswordHash: "hash",
		Role:         types.RoleAdmin,
		IsActive:     true,
		LastLogin:    &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	doc, err := documentFromUser(user)
	require.NoError(t, err)
	assert.Equal(t, user.ID, doc.ID.Hex())
	assert.Equal(t, user, doc.toUser())

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var fields bson.M
	require.NoError(t, bson.Unmarshal(raw, &fields))
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "isActive")
	assert.NotContains(t, fields, "lockUntil")
}

func TestDocumentFromUser_InvalidID(t *testing.T) {
	_, err := documentFromUser(types.User{ID: "not-an-id"})
	assert.Error(t, err)
}

func TestLoginFailurePipeline(t *testing.T) {
	now := time.Now().UTC()
	policy := auth.DefaultLockoutPolicy()

	pipeline := loginFailurePipeline(policy, now)
	require.Len(t, pipeline, 1)
	stage := pipeline[0]
	require.Len(t, stage, 1)
	assert.Equal(t, "$set", stage[0].Key)

	set, ok := stage[0].Value.(bson.D)
	require.True(t, ok)
	var keys []string
	for _, e := range set {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"loginAttempts", "lockUntil", "updatedAt"}, keys)
}

func TestChangesDocument(t *testing.T) {
	now := time.Now().UTC()
	hash := "h"
	active := false

	set := changesDocument(types.UserChanges{PasswordHash: &hash, IsActive: &active}, now)
	assert.Equal(t, bson.D{
		{Key: "password", Value: "h"},
		{Key: "isActive", Value: false},
		{Key: "updatedAt", Value: now},
	}, set)

	assert.Equal(t, bson.D{{Key: "updatedAt", Value: now}}, changesDocument(types.UserChanges{}, now))
}

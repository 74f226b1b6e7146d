package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessPolicy_Authorize(t *testing.T) {
	var p AccessPolicy

	assert.True(t, p.Authorize(admin, RoleAdmin))
	assert.False(t, p.Authorize(admin, RoleRequester))
	assert.True(t, p.Authorize(requester, RoleRequester))
	assert.False(t, p.Authorize(requester, RoleAdmin))
	assert.False(t, p.Authorize(anonymous, RoleRequester))
	assert.False(t, p.Authorize(anonymous, RoleAdmin))
}

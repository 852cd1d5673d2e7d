// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorText(t *testing.T) {
	assert.Equal(t, "invalid_tenant: bad name", New(InvalidTenant, "bad name").Error())
	assert.Equal(t, "connect_failed: open alice: refused",
		Wrap(ConnectFailed, "open alice", stderrors.New("refused")).Error())
}

func TestIsFollowsWrapping(t *testing.T) {
	cause := stderrors.New("refused")
	err := fmt.Errorf("run: %w", Wrap(ConnectFailed, "open alice", cause))

	assert.True(t, Is(err, ConnectFailed))
	assert.False(t, Is(err, ProvisionFailed))
	assert.ErrorIs(t, err, cause)
	assert.False(t, Is(cause, ConnectFailed))
	assert.False(t, Is(nil, ConnectFailed))
}

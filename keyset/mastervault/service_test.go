// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package mastervault

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/require"

	"github.com/sealedstore/cafc/internal/mock"
)

func newTestService(logical Logical) *Service {
	return &Service{logical: logical, mountPath: "transit", keyName: "test-key"}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "transit", "test-key")
	require.Error(t, err)

	client, err := api.NewClient(api.DefaultConfig())
	require.NoError(t, err)

	_, err = New(client, "transit", "")
	require.Error(t, err)

	s, err := New(client, "", "test-key")
	require.NoError(t, err)
	require.Equal(t, "transit", s.mountPath)
}

func TestService_Seal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	ml := mock.NewMockLogical(ctrl)
	ml.EXPECT().WriteWithContext(gomock.Any(), "transit/encrypt/test-key", gomock.Any()).
		Return(&api.Secret{Data: map[string]interface{}{"ciphertext": "vault:v1:abc"}}, nil)

	s := newTestService(ml)
	got, err := s.Seal([]byte("plaintext"), []byte("aad"))
	require.NoError(t, err)
	require.Equal(t, []byte("vault:v1:abc"), got)
}

func TestService_Seal_WriteError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	ml := mock.NewMockLogical(ctrl)
	ml.EXPECT().WriteWithContext(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	s := newTestService(ml)
	_, err := s.Seal([]byte("plaintext"), nil)
	require.Error(t, err)
}

func TestService_Seal_NilResponse(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	ml := mock.NewMockLogical(ctrl)
	ml.EXPECT().WriteWithContext(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	s := newTestService(ml)
	_, err := s.Seal([]byte("plaintext"), nil)
	require.Error(t, err)
}

func TestService_Open(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	ml := mock.NewMockLogical(ctrl)
	ml.EXPECT().WriteWithContext(gomock.Any(), "transit/decrypt/test-key", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, data map[string]interface{}) (*api.Secret, error) {
			require.Equal(t, "vault:v1:abc", data["ciphertext"])
			return &api.Secret{Data: map[string]interface{}{"plaintext": "cGxhaW50ZXh0"}}, nil
		})

	s := newTestService(ml)
	got, err := s.Open([]byte("vault:v1:abc"), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("plaintext"), got)
}

func TestService_Open_BadBase64(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	ml := mock.NewMockLogical(ctrl)
	ml.EXPECT().WriteWithContext(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&api.Secret{Data: map[string]interface{}{"plaintext": "not-base64!!"}}, nil)

	s := newTestService(ml)
	_, err := s.Open([]byte("vault:v1:abc"), nil)
	require.Error(t, err)
}

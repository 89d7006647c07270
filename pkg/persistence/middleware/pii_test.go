package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/threadgraph/pkg/adapters/memory"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_MasksMatchingKeys(t *testing.T) {
	underlying := memory.NewStore()
	store := middleware.NewPIIMiddleware([]string{"(?i)password", "^ssn$"})(underlying)
	ctx := context.Background()

	st := domain.NewState()
	st.Messages = []domain.Message{domain.UserMessage("hello")}
	st.Values["password"] = "hunter2"
	st.Values["ssn"] = "123"
	st.Values["name"] = "ada"
	st.Values["profile"] = map[string]any{"DBPassword": "x", "city": "lisbon"}

	_, err := store.Put(ctx, "t1", st)
	require.NoError(t, err)

	saved, err := underlying.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, saved.Values["password"])
	assert.Equal(t, middleware.Mask, saved.Values["ssn"])
	assert.Equal(t, "ada", saved.Values["name"])
	profile := saved.Values["profile"].(map[string]any)
	assert.Equal(t, middleware.Mask, profile["DBPassword"])
	assert.Equal(t, "lisbon", profile["city"])
	assert.Equal(t, "hello", saved.Messages[0].Content, "transcript is not redacted")

	// The caller's state is untouched.
	assert.Equal(t, "hunter2", st.Values["password"])
	assert.Equal(t, "x", st.Values["profile"].(map[string]any)["DBPassword"])
}

func TestChain_Order(t *testing.T) {
	underlying := memory.NewStore()
	key := generateKey(t)
	store := middleware.Chain(underlying,
		middleware.NewPIIMiddleware([]string{"token"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}),
	)
	ctx := context.Background()

	st := domain.NewState()
	st.Values["token"] = "abc"
	_, err := store.Put(ctx, "t1", st)
	require.NoError(t, err)

	// Redaction runs before encryption, so decrypting shows the mask.
	loaded, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Values["token"])

	raw, err := underlying.Get(ctx, "t1")
	require.NoError(t, err)
	assert.NotContains(t, raw.Values, "token")
}

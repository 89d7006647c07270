package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
)

// envelopeField is the only value an encrypted checkpoint exposes to the underlying store.
const envelopeField = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.CheckpointStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts state using AES-GCM (Envelope Encryption).
// Version numbering stays with the underlying store.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Put(ctx context.Context, threadID string, state domain.State) (domain.Checkpoint, error) {
	plainText, err := json.Marshal(state)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to marshal state: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to encrypt state: %w", err)
	}

	// The envelope hides the transcript and every value.
	envelope := domain.NewState()
	envelope.Values[envelopeField] = base64.StdEncoding.EncodeToString(ciphertext)

	cp, err := m.next.Put(ctx, threadID, envelope)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	cp.State = state
	return cp, nil
}

func (m *encryptionMiddleware) Get(ctx context.Context, threadID string) (domain.State, error) {
	envelope, err := m.next.Get(ctx, threadID)
	if err != nil {
		return domain.State{}, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) GetCheckpoint(ctx context.Context, threadID string) (domain.Checkpoint, error) {
	cp, err := m.next.GetCheckpoint(ctx, threadID)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	if cp.State, err = m.open(cp.State); err != nil {
		return domain.Checkpoint{}, err
	}
	return cp, nil
}

// ListCheckpoints decrypts the lineage when the underlying store keeps one.
func (m *encryptionMiddleware) ListCheckpoints(ctx context.Context, threadID string) ([]domain.Checkpoint, error) {
	lister, ok := m.next.(ports.CheckpointLister)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	lineage, err := lister.ListCheckpoints(ctx, threadID)
	if err != nil {
		return nil, err
	}
	for i := range lineage {
		if lineage[i].State, err = m.open(lineage[i].State); err != nil {
			return nil, fmt.Errorf("checkpoint v%d: %w", lineage[i].Version, err)
		}
	}
	return lineage, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) open(envelope domain.State) (domain.State, error) {
	encryptedStr, ok := envelope.Values[envelopeField].(string)
	if !ok {
		// Fail secure: a plain checkpoint is not accepted once encryption is configured.
		return domain.State{}, errors.New("state is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return domain.State{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.State{}, fmt.Errorf("failed to decrypt state: %w", err)
	}

	realState := domain.NewState()
	if err := json.Unmarshal(plainText, &realState); err != nil {
		return domain.State{}, fmt.Errorf("failed to unmarshal decrypted state: %w", err)
	}
	return realState, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}

// Package identity manages the long-lived device keypair that identifies a
// single goclaw installation. Pairing tokens are handled by internal/pairing.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Device is the public half of the installation's identity, safe to
// broadcast during pairing.
type Device struct {
	PublicKey string    `json:"publicKey"` // hex-encoded ed25519 public key
	CreatedAt time.Time `json:"createdAt"`
}

// deviceAuth is the private half, persisted with file mode 0600 and never
// included in wire payloads.
type deviceAuth struct {
	PrivateKey string    `json:"privateKey"` // hex-encoded ed25519 seed
	CreatedAt  time.Time `json:"createdAt"`
}

// Identity holds the resolved device keypair for one workspace root.
type Identity struct {
	mu      sync.RWMutex
	dir     string
	public  Device
	private ed25519.PrivateKey
}

// Load reads (or, on first boot, generates and persists) the device
// identity under <workspaceRoot>/identity/. Generation never happens more
// than once per workspace: a device is never rotated automatically.
func Load(workspaceRoot string) (*Identity, error) {
	dir := filepath.Join(workspaceRoot, "identity")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}

	devicePath := filepath.Join(dir, "device.json")
	authPath := filepath.Join(dir, "device-auth.json")

	devData, devErr := os.ReadFile(devicePath)
	authData, authErr := os.ReadFile(authPath)

	if devErr == nil && authErr == nil {
		var dev Device
		var auth deviceAuth
		if err := json.Unmarshal(devData, &dev); err != nil {
			return nil, fmt.Errorf("parse device.json: %w", err)
		}
		if err := json.Unmarshal(authData, &auth); err != nil {
			return nil, fmt.Errorf("parse device-auth.json: %w", err)
		}
		seed, err := hex.DecodeString(auth.PrivateKey)
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("corrupt device-auth.json")
		}
		return &Identity{dir: dir, public: dev, private: ed25519.NewKeyFromSeed(seed)}, nil
	}

	if !os.IsNotExist(devErr) && devErr != nil {
		return nil, devErr
	}
	if !os.IsNotExist(authErr) && authErr != nil {
		return nil, authErr
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate device keypair: %w", err)
	}

	now := time.Now()
	id := &Identity{
		dir:     dir,
		public:  Device{PublicKey: hex.EncodeToString(pub), CreatedAt: now},
		private: priv,
	}

	auth := deviceAuth{PrivateKey: hex.EncodeToString(priv.Seed()), CreatedAt: now}
	if err := writeJSONAtomic(devicePath, id.public, 0o644); err != nil {
		return nil, fmt.Errorf("write device.json: %w", err)
	}
	if err := writeJSONAtomic(authPath, auth, 0o600); err != nil {
		return nil, fmt.Errorf("write device-auth.json: %w", err)
	}
	return id, nil
}

// Public returns the broadcastable device identity.
func (id *Identity) Public() Device {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.public
}

// Sign produces a detached signature over an arbitrary challenge nonce,
// used to answer the gateway's handshake proof step for device-role
// connections.
func (id *Identity) Sign(nonce []byte) []byte {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return ed25519.Sign(id.private, nonce)
}

// VerifyDeviceProof checks a claimed public key's signature over a nonce.
// Used by the gateway to validate an incoming device-role handshake proof;
// the claimed key need not be this installation's own key (pairing allows
// enrolling other devices' public keys).
func VerifyDeviceProof(publicKeyHex string, nonce, signature []byte) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), nonce, signature)
}

// writeJSONAtomic mirrors the teacher's session-store write idiom: marshal,
// write to a sibling temp file, fsync, then rename into place.
func writeJSONAtomic(path string, v interface{}, mode os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "identity-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

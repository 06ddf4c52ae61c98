package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/harborctl/controlplane/pkg/types"
)

var (
	bucketUsers           = []byte("users")
	bucketRefreshTokens   = []byte("refresh_tokens")
	bucketHosts           = []byte("hosts")
	bucketHostCredentials = []byte("host_credentials")
	bucketHostPermissions = []byte("host_permissions")
	bucketAuditEvents     = []byte("audit_events")
	bucketWizardInstances = []byte("wizard_instances")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the control plane database
// under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "controlplane.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	buckets := [][]byte{
		bucketUsers, bucketRefreshTokens, bucketHosts, bucketHostCredentials,
		bucketHostPermissions, bucketAuditEvents, bucketWizardInstances,
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func put(db *bolt.DB, bucket []byte, key string, v any) error {
	return db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func get(db *bolt.DB, bucket []byte, key string, v any) error {
	return db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("storage: not found: %s", key)
		}
		return json.Unmarshal(data, v)
	})
}

func del(db *bolt.DB, bucket []byte, key string) error {
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// Users

func (s *BoltStore) CreateUser(u *types.User) error { return put(s.db, bucketUsers, u.ID, u) }

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var u types.User
	if err := get(s.db, bucketUsers, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *BoltStore) GetUserByUsername(username string) (*types.User, error) {
	users, err := s.ListUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, fmt.Errorf("storage: user not found: %s", username)
}

func (s *BoltStore) ListUsers() ([]*types.User, error) {
	var users []*types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var u types.User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			users = append(users, &u)
			return nil
		})
	})
	return users, err
}

func (s *BoltStore) UpdateUser(u *types.User) error { return s.CreateUser(u) }
func (s *BoltStore) DeleteUser(id string) error     { return del(s.db, bucketUsers, id) }

// Refresh tokens

func (s *BoltStore) CreateRefreshToken(t *types.RefreshToken) error {
	return put(s.db, bucketRefreshTokens, t.ID, t)
}

func (s *BoltStore) GetRefreshToken(id string) (*types.RefreshToken, error) {
	var t types.RefreshToken
	if err := get(s.db, bucketRefreshTokens, id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) ListRefreshTokensByUser(userID string) ([]*types.RefreshToken, error) {
	var tokens []*types.RefreshToken
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefreshTokens).ForEach(func(k, v []byte) error {
			var t types.RefreshToken
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if t.UserID == userID {
				tokens = append(tokens, &t)
			}
			return nil
		})
	})
	return tokens, err
}

func (s *BoltStore) UpdateRefreshToken(t *types.RefreshToken) error {
	return s.CreateRefreshToken(t)
}

func (s *BoltStore) DeleteRefreshToken(id string) error {
	return del(s.db, bucketRefreshTokens, id)
}

// Hosts

func (s *BoltStore) CreateHost(h *types.Host) error { return s.UpdateHost(h) }

func (s *BoltStore) GetHost(id string) (*types.Host, error) {
	var h types.Host
	if err := get(s.db, bucketHosts, id, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *BoltStore) ListHosts() ([]*types.Host, error) {
	var hosts []*types.Host
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHosts).ForEach(func(k, v []byte) error {
			var h types.Host
			if err := json.Unmarshal(v, &h); err != nil {
				return err
			}
			hosts = append(hosts, &h)
			return nil
		})
	})
	return hosts, err
}

// UpdateHost clears Default on every other host in the same transaction
// when h.Default is set, so "at most one default host" never needs a
// separate read-modify-write race window.
func (s *BoltStore) UpdateHost(h *types.Host) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		if h.Default {
			if err := b.ForEach(func(k, v []byte) error {
				if string(k) == h.ID {
					return nil
				}
				var other types.Host
				if err := json.Unmarshal(v, &other); err != nil {
					return err
				}
				if other.Default {
					other.Default = false
					data, err := json.Marshal(&other)
					if err != nil {
						return err
					}
					return b.Put(k, data)
				}
				return nil
			}); err != nil {
				return err
			}
		}
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		return b.Put([]byte(h.ID), data)
	})
}

func (s *BoltStore) DeleteHost(id string) error { return del(s.db, bucketHosts, id) }

// Host credentials

func (s *BoltStore) CreateHostCredential(c *types.HostCredential) error {
	return put(s.db, bucketHostCredentials, c.ID, c)
}

func (s *BoltStore) ListHostCredentials(hostID string) ([]*types.HostCredential, error) {
	var creds []*types.HostCredential
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHostCredentials).ForEach(func(k, v []byte) error {
			var c types.HostCredential
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.HostID == hostID {
				creds = append(creds, &c)
			}
			return nil
		})
	})
	return creds, err
}

func (s *BoltStore) DeleteHostCredentialsByHost(hostID string) error {
	creds, err := s.ListHostCredentials(hostID)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHostCredentials)
		for _, c := range creds {
			if err := b.Delete([]byte(c.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Host permissions

func (s *BoltStore) CreateHostPermission(p *types.HostPermission) error {
	return put(s.db, bucketHostPermissions, p.ID, p)
}

func (s *BoltStore) ListHostPermissions(hostID string) ([]*types.HostPermission, error) {
	var perms []*types.HostPermission
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHostPermissions).ForEach(func(k, v []byte) error {
			var p types.HostPermission
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.HostID == hostID {
				perms = append(perms, &p)
			}
			return nil
		})
	})
	return perms, err
}

func (s *BoltStore) ListHostPermissionsByUser(userID string) ([]*types.HostPermission, error) {
	var perms []*types.HostPermission
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHostPermissions).ForEach(func(k, v []byte) error {
			var p types.HostPermission
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.UserID == userID {
				perms = append(perms, &p)
			}
			return nil
		})
	})
	return perms, err
}

func (s *BoltStore) DeleteHostPermission(id string) error {
	return del(s.db, bucketHostPermissions, id)
}

// Audit events

func (s *BoltStore) CreateAuditEvent(e *types.AuditEvent) error {
	return put(s.db, bucketAuditEvents, e.ID, e)
}

func (s *BoltStore) ListAuditEvents(limit int) ([]*types.AuditEvent, error) {
	var events []*types.AuditEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAuditEvents).ForEach(func(k, v []byte) error {
			var e types.AuditEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			events = append(events, &e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Wizard instances

func (s *BoltStore) CreateWizardInstance(w *types.WizardInstance) error {
	return put(s.db, bucketWizardInstances, w.ID, w)
}

func (s *BoltStore) GetWizardInstance(id string) (*types.WizardInstance, error) {
	var w types.WizardInstance
	if err := get(s.db, bucketWizardInstances, id, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *BoltStore) ListWizardInstances() ([]*types.WizardInstance, error) {
	var instances []*types.WizardInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWizardInstances).ForEach(func(k, v []byte) error {
			var w types.WizardInstance
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			instances = append(instances, &w)
			return nil
		})
	})
	return instances, err
}

func (s *BoltStore) UpdateWizardInstance(w *types.WizardInstance) error {
	return s.CreateWizardInstance(w)
}

func (s *BoltStore) DeleteWizardInstance(id string) error {
	return del(s.db, bucketWizardInstances, id)
}

package ident

import (
	"github.com/google/uuid"
	"github.com/otelfleet/otelagent/pkg/util"
)

// Instance identifies one agent process to the control plane. It is generated
// once per process lifetime and never persisted, so a restarted process always
// presents a new identity.
type Instance struct {
	uid uuid.UUID
}

// NewInstance returns a fresh time-ordered instance identity.
func NewInstance() Instance {
	return Instance{uid: util.NewUUIDv7()}
}

// InstanceFromUUID wraps an existing uuid, mainly for tests that need a
// predictable identity.
func InstanceFromUUID(uid uuid.UUID) Instance {
	return Instance{uid: uid}
}

// Bytes is the 16 byte form sent as the OpAMP instance_uid.
func (i Instance) Bytes() []byte {
	b := make([]byte, len(i.uid))
	copy(b, i.uid[:])
	return b
}

func (i Instance) String() string {
	return i.uid.String()
}

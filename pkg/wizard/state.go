package wizard

import (
	"encoding/json"

	"github.com/harborctl/controlplane/pkg/types"
)

// KindSSHHost is the only Instance kind this repo implements. The engine
// itself stays generic over kind; a second kind would only need its own
// state struct, validator table and committer.
const KindSSHHost = "ssh_host"

// AuthMethod is how the ssh_host wizard's credentials step gathers an SSH
// identity.
type AuthMethod string

const (
	AuthGenerateKey AuthMethod = "generate"
	AuthUploadKey   AuthMethod = "upload"
	AuthPassword    AuthMethod = "password"
)

// SSHHostState is the ssh_host wizard's state blob, JSON-marshaled
// wholesale into WizardInstance.State on every UpdateStep call. Secret
// material gathered here is plaintext in memory and at rest in bbolt only
// for the lifetime of the wizard instance; Complete seals it into the
// vault and the instance is deleted, never a HostCredential's plaintext
// living on past that point.
type SSHHostState struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Default bool   `json:"default"`

	AuthMethod          AuthMethod `json:"auth_method,omitempty"`
	SSHUser             string     `json:"ssh_user,omitempty"`
	SSHPrivateKeyPEM    string     `json:"ssh_private_key_pem,omitempty"`
	SSHPublicKeyOpenSSH string     `json:"ssh_public_key_openssh,omitempty"`
	SSHPassphrase       string     `json:"ssh_passphrase,omitempty"`
	SSHPassword         string     `json:"ssh_password,omitempty"`

	SSHProbeOK    bool `json:"ssh_probe_ok"`
	DockerProbeOK bool `json:"docker_probe_ok"`
}

func decodeSSHHostState(raw json.RawMessage) (*SSHHostState, error) {
	var s SSHHostState
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func encodeSSHHostState(s *SSHHostState) (json.RawMessage, error) {
	return json.Marshal(s)
}

// stepIndex returns step's position in types.WizardSteps, or -1 if step is
// not part of the fixed order (e.g. types.WizardStepPreview or
// types.WizardStepComplete; Complete() marks an instance done through its
// Status and leaves Step at the confirm step).
func stepIndex(step types.WizardStep) int {
	for i, s := range types.WizardSteps {
		if s == step {
			return i
		}
	}
	return -1
}

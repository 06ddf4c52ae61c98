package wizard

import (
	"net"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/types"
)

// stepValidator checks that state is complete enough to advance past step.
// sshHostValidators is keyed by step alone, since this repo only has one
// kind; a second kind would get a table of its own.
type stepValidator func(*SSHHostState) error

var sshHostValidators = map[types.WizardStep]stepValidator{
	types.WizardStepTransport:   validateTransport,
	types.WizardStepCredentials: validateCredentials,
	types.WizardStepSSHProbe:    validateSSHProbe,
	types.WizardStepDockerProbe: validateDockerProbe,
}

func validateTransport(s *SSHHostState) error {
	if s.Name == "" {
		return apierr.New(apierr.KindMissingField, "name is required").WithField("name")
	}
	if s.Address == "" {
		return apierr.New(apierr.KindMissingField, "address is required").WithField("address")
	}
	if _, _, err := net.SplitHostPort(s.Address); err != nil {
		return apierr.New(apierr.KindValidation, "address must be host:port").WithField("address")
	}
	return nil
}

func validateCredentials(s *SSHHostState) error {
	switch s.AuthMethod {
	case AuthGenerateKey, AuthUploadKey:
		if s.SSHPrivateKeyPEM == "" {
			return apierr.New(apierr.KindMissingField, "no private key on file for this auth method").WithField("ssh_private_key_pem")
		}
	case AuthPassword:
		if s.SSHPassword == "" {
			return apierr.New(apierr.KindMissingField, "password is required for password authentication").WithField("ssh_password")
		}
	default:
		return apierr.New(apierr.KindMissingField, "choose an authentication method").WithField("auth_method")
	}
	return nil
}

func validateSSHProbe(s *SSHHostState) error {
	if !s.SSHProbeOK {
		return apierr.New(apierr.KindWizardProbeFailed, "run the SSH probe successfully before continuing")
	}
	return nil
}

func validateDockerProbe(s *SSHHostState) error {
	if !s.DockerProbeOK {
		return apierr.New(apierr.KindWizardProbeFailed, "run the Docker probe successfully before continuing")
	}
	return nil
}

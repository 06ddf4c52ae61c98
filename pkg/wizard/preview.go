package wizard

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// previewDoc is what renderPreview marshals. Only credential kinds are
// named, never plaintext: the wizard holds real secret material in its
// state blob, but nothing committed to a preview a caller might log or
// display should carry it.
type previewDoc struct {
	Host struct {
		Name      string `yaml:"name"`
		Transport string `yaml:"transport"`
		Address   string `yaml:"address"`
		Default   bool   `yaml:"default"`
		Status    string `yaml:"status"`
	} `yaml:"host"`
	Credentials []string `yaml:"credentials"`
}

func renderPreview(state *SSHHostState) (string, error) {
	var doc previewDoc
	doc.Host.Name = state.Name
	doc.Host.Transport = "ssh"
	doc.Host.Address = state.Address
	doc.Host.Default = state.Default
	doc.Host.Status = "setup-pending"

	switch state.AuthMethod {
	case AuthGenerateKey, AuthUploadKey:
		doc.Credentials = append(doc.Credentials, "ssh_private_key")
		if state.SSHPassphrase != "" {
			doc.Credentials = append(doc.Credentials, "ssh_passphrase")
		}
	case AuthPassword:
		doc.Credentials = append(doc.Credentials, "ssh_password")
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("wizard: marshal preview: %w", err)
	}
	return string(out), nil
}

package store

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/usagecast/usagecast/core/model"
)

// fixture is the on-disk shape of a configuration file.
type fixture struct {
	Resources   []model.Resource      `json:"resources"`
	MQTTServers []model.MQTTServer    `json:"mqtt_servers"`
	MQTTConfigs []model.MQTTConfig    `json:"mqtt_configs"`
	Webhooks    []model.WebhookConfig `json:"webhooks"`
}

// LoadFile reads a yaml or json configuration file into a Memory store.
func LoadFile(path string) (*Memory, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported store format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	var f fixture
	if err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}

	m := NewMemory()
	for _, r := range f.Resources {
		m.PutResource(r)
	}
	for _, s := range f.MQTTServers {
		m.PutMQTTServer(s)
	}
	for _, c := range f.MQTTConfigs {
		m.PutMQTTConfig(c)
	}
	for _, w := range f.Webhooks {
		m.PutWebhookConfig(w)
	}
	return m, nil
}

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChannelConfig describes one storefront fed from an upstream sales channel.
type ChannelConfig struct {
	Name                    string  `yaml:"name"`
	ChannelID               int64   `yaml:"channel_id"`
	Country                 string  `yaml:"country"`
	ParentCategoryID        int64   `yaml:"parent_category_id"`
	TransferDiscountPercent float64 `yaml:"transfer_discount_percent"`
	BenefitsCategoryID      int64   `yaml:"benefits_category_id"`
	CampaignsCategoryID     int64   `yaml:"campaigns_category_id"`
	ReserveCategoryID       int64   `yaml:"reserve_category_id"`

	// Set from Config.VolumetricExemptCountries, never from yaml.
	SkipVolumetricWeight bool `yaml:"-"`
}

type channelsFile struct {
	Channels []ChannelConfig `yaml:"channels"`
}

func (c ChannelConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: channel name", ErrMissingField)
	}
	if c.ChannelID <= 0 {
		return fmt.Errorf("%w: channel_id for channel %q", ErrMissingField, c.Name)
	}
	if c.TransferDiscountPercent < 0 || c.TransferDiscountPercent >= 100 {
		return fmt.Errorf("channel %q: transfer_discount_percent must be in [0,100), got %v", c.Name, c.TransferDiscountPercent)
	}
	return nil
}

// LoadChannels reads the channel definitions from a yaml file.
func LoadChannels(filename string, exemptCountries []string) ([]ChannelConfig, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var parsed channelsFile
	if err := yaml.NewDecoder(file).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	return prepareChannels(parsed.Channels, exemptCountries)
}

func prepareChannels(channels []ChannelConfig, exemptCountries []string) ([]ChannelConfig, error) {
	seen := make(map[string]struct{}, len(channels))
	for i := range channels {
		ch := &channels[i]
		if err := ch.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[ch.Name]; dup {
			return nil, fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = struct{}{}

		ch.Country = strings.ToUpper(strings.TrimSpace(ch.Country))
		for _, c := range exemptCountries {
			if c == ch.Country {
				ch.SkipVolumetricWeight = true
			}
		}
	}
	return channels, nil
}

// FindChannel returns the channel with the given name.
func FindChannel(channels []ChannelConfig, name string) (ChannelConfig, bool) {
	for _, ch := range channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the options of one conversion run.
type Config struct {
	MetadataStyle MetadataStyle `validate:"oneof=section frontmatter"`
	OutputMode    OutputMode    `validate:"oneof=stream disk epub"`
	OutputDir     string        `validate:"required_if=OutputMode disk"`
	EpubFile      string        `validate:"required_if=OutputMode epub"`
	BookTitle     string
	Timezone      string `validate:"oneof=utc local"`
	Workers       int    `validate:"min=1,max=64"`
	NameUntitled  bool
	Lenient       bool
	Images        optimizeOpts
}

// defaultConfig returns the built-in defaults, overridden by ENEX2MD_*
// environment variables.
func defaultConfig() Config {
	return Config{
		MetadataStyle: MetadataStyle(envOr("ENEX2MD_METADATA", string(StyleSection))),
		OutputMode:    OutputMode(envOr("ENEX2MD_OUTPUT", string(ModeStream))),
		OutputDir:     envOr("ENEX2MD_DIR", "output"),
		Timezone:      envOr("ENEX2MD_TIMEZONE", "utc"),
		Workers:       envInt("ENEX2MD_WORKERS", 4),
		Images: optimizeOpts{
			maxWidth: envInt("ENEX2MD_MAX_WIDTH", 0),
			quality:  80,
		},
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

var validate = validator.New()

// Validate checks the option values and reports every invalid field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.Images.maxWidth < 0 || c.Images.quality < 1 || c.Images.quality > 100 {
			return errors.New("invalid config: image width must be >= 0 and quality 1-100")
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fmt.Sprint(fe.Value())))
		case "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required when %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// location is the zone metadata timestamps are rendered in.
func (c Config) location() *time.Location {
	if c.Timezone == "local" {
		return time.Local
	}
	return time.UTC
}

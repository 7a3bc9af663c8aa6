package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/jessevdk/go-flags"
)

// CmdEnv is a struct that contains all the command line options; it's
// separate from the config struct so that we can apply the command line options
// and env vars after loading the config, and so they don't have to be tied to
// the config struct. Command line options override env vars, and both of them
// override values already in the struct when ApplyTags is called.
type CmdEnv struct {
	ConfigLocations []string `short:"c" long:"config" env:"QUEUEROUTER_CONFIG" env-delim:"," description:"config file or URL to load; may be repeated"`
	Sharding        bool     `long:"sharding" env:"QUEUEROUTER_SHARDING" description:"route queues across the registered shards"`
	CatalogStorage  string   `long:"catalog-storage" env:"QUEUEROUTER_CATALOG_STORAGE" description:"where shards and the catalogue are kept: inmem, redis or mysql"`
	StorageURI      string   `long:"storage-uri" env:"QUEUEROUTER_STORAGE_URI" description:"backend URI used when sharding is disabled"`
	RedisHost       string   `long:"redis-host" env:"QUEUEROUTER_REDIS_HOST" description:"redis host:port for the catalog"`
	RedisUsername   string   `long:"redis-username" env:"QUEUEROUTER_REDIS_USERNAME"`
	RedisPassword   string   `long:"redis-password" env:"QUEUEROUTER_REDIS_PASSWORD"`
	RedisAuthCode   string   `long:"redis-auth-code" env:"QUEUEROUTER_REDIS_AUTH_CODE"`
	MySQLDSN        string   `long:"mysql-dsn" env:"QUEUEROUTER_MYSQL_DSN" description:"MySQL DSN for the catalog"`
	LoggerType      string   `long:"logger" env:"QUEUEROUTER_LOGGER" description:"logger type: stdout or none"`
	LoggerLevel     Level    `long:"log-level" env:"QUEUEROUTER_LOG_LEVEL" description:"debug, info, warn or error"`
	Debug           bool     `short:"d" long:"debug" description:"log the dependency graph while wiring"`
	Version         bool     `short:"v" long:"version" description:"print version number and exit"`
	Validate        bool     `short:"V" long:"validate" description:"validate the configuration and exit"`
}

// NewCmdEnvOptions parses args (typically os.Args) into a CmdEnv.
func NewCmdEnvOptions(args []string) (*CmdEnv, error) {
	opts := &CmdEnv{}

	if _, err := flags.NewParser(opts, flags.Default).ParseArgs(args[1:]); err != nil {
		switch flagsErr := err.(type) {
		case *flags.Error:
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			return nil, err
		default:
			return nil, err
		}
	}

	return opts, nil
}

// GetField returns the reflect.Value for the field with the given name in the CmdEnvOptions struct.
func (c *CmdEnv) GetField(name string) reflect.Value {
	return reflect.ValueOf(c).Elem().FieldByName(name)
}

// ApplyTags uses reflection to apply the values from the CmdEnv struct to the given struct.
// Any field in the struct that wants to be set from the command line must have a `cmdenv` tag on it that names
// the field in the CmdEnv struct that should be used to set the value. The types must match. If the
// named field in CmdEnv is the zero value, then it will not be applied.
func (c *CmdEnv) ApplyTags(s reflect.Value) error {
	return applyCmdEnvTags(s, c)
}

type getFielder interface {
	GetField(name string) reflect.Value
}

// applyCmdEnvTags applies the values from the given getFielder to the given struct.
func applyCmdEnvTags(s reflect.Value, fielder getFielder) error {
	switch s.Kind() {
	case reflect.Struct:
		t := s.Type()

		for i := 0; i < s.NumField(); i++ {
			field := s.Field(i)
			fieldType := t.Field(i)

			if tag := fieldType.Tag.Get("cmdenv"); tag != "" {
				value := fielder.GetField(tag)
				if !value.IsValid() {
					// the tag must name a field in CmdEnv
					return fmt.Errorf("programming error -- invalid field name: %s", tag)
				}
				if !field.CanSet() {
					return fmt.Errorf("programming error -- cannot set new value for: %s", fieldType.Name)
				}

				if !value.IsZero() {
					if fieldType.Type != value.Type() {
						return fmt.Errorf("programming error -- types don't match for field: %s (%v and %v)",
							fieldType.Name, fieldType.Type, value.Type())
					}
					field.Set(value)
				}
			}

			if err := applyCmdEnvTags(field, fielder); err != nil {
				return err
			}
		}

	case reflect.Ptr:
		if !s.IsNil() {
			return applyCmdEnvTags(s.Elem(), fielder)
		}
	}
	return nil
}

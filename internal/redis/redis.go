package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/facebookgo/startstop"
	"github.com/gomodule/redigo/redis"

	"github.com/honeycombio/queuerouter/config"
)

type Script interface {
	Load(conn Conn) error
	Do(ctx context.Context, conn Conn, keysAndArgs ...any) (any, error)
}

type Client interface {
	Get() Conn
	NewScript(keyCount int, src string) Script
	// Key returns name under the configured key prefix.
	Key(parts ...string) string
	startstop.Starter
	startstop.Stopper
}

type Conn interface {
	Close() error
	Del(...string) (int64, error)

	SMembers(string) ([]string, error)
	SIsMember(string, string) (bool, error)

	GetBytesHash(string) (map[string][]byte, error)
	GetHashField(string, string) (string, error)
	HExists(string, string) (bool, error)
	HDel(string, ...string) (int64, error)

	Do(string, ...any) (any, error)
	Exec(...Command) error
}

var _ Client = &DefaultClient{}

type DefaultClient struct {
	pool   *redis.Pool
	prefix string
	Config config.Config `inject:""`
}

type DefaultConn struct {
	conn redis.Conn
}

type DefaultScript struct {
	script *redis.Script
}

// ErrNil is returned when a requested key or hash field is absent.
var ErrNil = redis.ErrNil

func buildOptions(c config.RedisConfig) []redis.DialOption {
	timeout := time.Duration(c.Timeout)
	if timeout <= 0 {
		timeout = time.Second
	}
	options := []redis.DialOption{
		redis.DialReadTimeout(timeout),
		redis.DialWriteTimeout(timeout),
		redis.DialConnectTimeout(timeout),
		redis.DialDatabase(c.Database),
	}

	if c.Username != "" {
		options = append(options, redis.DialUsername(c.Username))
	}
	if c.Password != "" {
		options = append(options, redis.DialPassword(c.Password))
	}

	if c.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		if c.UseTLSInsecure {
			tlsConfig.InsecureSkipVerify = true
		}
		options = append(options,
			redis.DialTLSConfig(tlsConfig),
			redis.DialUseTLS(true))
	}

	return options
}

func (d *DefaultClient) Start() error {
	rc := d.Config.GetRedisConfig()
	redisHost := rc.Host
	if redisHost == "" {
		redisHost = "localhost:6379"
	}
	d.prefix = rc.Prefix

	options := buildOptions(rc)
	d.pool = &redis.Pool{
		MaxIdle:     rc.MaxIdle,
		MaxActive:   rc.MaxActive,
		IdleTimeout: 5 * time.Minute,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			conn, err := redis.Dial("tcp", redisHost, options...)
			if err != nil {
				return nil, err
			}
			if rc.AuthCode != "" {
				if _, err := conn.Do("AUTH", rc.AuthCode); err != nil {
					conn.Close()
					return nil, err
				}
			}
			return conn, nil
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	return nil
}

func (d *DefaultClient) Stop() error {
	return d.pool.Close()
}

// Get returns a connection from the underlying pool. Return this connection to
// the pool with conn.Close().
func (d *DefaultClient) Get() Conn {
	return &DefaultConn{conn: d.pool.Get()}
}

// NewScript returns a new script object that can be optionally registered with
// the redis server (using Load) and then executed (using Do).
func (d *DefaultClient) NewScript(keyCount int, src string) Script {
	return &DefaultScript{
		script: redis.NewScript(keyCount, src),
	}
}

func (d *DefaultClient) Key(parts ...string) string {
	return joinKey(d.prefix, parts)
}

func joinKey(prefix string, parts []string) string {
	if prefix == "" {
		return strings.Join(parts, ":")
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// IsConnectionError reports whether err came from reaching the server rather
// than from a reply the server sent.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) || errors.Is(err, redis.ErrNil) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, redis.ErrPoolExhausted) {
		return true
	}
	// redigo does not export the closed-pool error
	return strings.Contains(err.Error(), "closed pool") || strings.Contains(err.Error(), "connection refused")
}

func (c *DefaultConn) Close() error {
	return c.conn.Close()
}

func (c *DefaultConn) Del(keys ...string) (int64, error) {
	args := redis.Args{}.AddFlat(keys)
	return redis.Int64(c.conn.Do("DEL", args...))
}

func (c *DefaultConn) SMembers(key string) ([]string, error) {
	return redis.Strings(c.conn.Do("SMEMBERS", key))
}

func (c *DefaultConn) SIsMember(key, member string) (bool, error) {
	return redis.Bool(c.conn.Do("SISMEMBER", key, member))
}

// GetBytesHash returns every field of the hash at key. Values are returned as
// raw bytes so binary fields survive.
func (c *DefaultConn) GetBytesHash(key string) (map[string][]byte, error) {
	values, err := redis.Values(c.conn.Do("HGETALL", key))
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		k, err := redis.String(values[i], nil)
		if err != nil {
			return nil, err
		}
		v, err := redis.Bytes(values[i+1], nil)
		if err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, nil
}

func (c *DefaultConn) GetHashField(key, field string) (string, error) {
	return redis.String(c.conn.Do("HGET", key, field))
}

func (c *DefaultConn) HExists(key, field string) (bool, error) {
	return redis.Bool(c.conn.Do("HEXISTS", key, field))
}

func (c *DefaultConn) HDel(key string, fields ...string) (int64, error) {
	args := redis.Args{key}.AddFlat(fields)
	return redis.Int64(c.conn.Do("HDEL", args...))
}

// Exec runs commands inside MULTI/EXEC.
func (c *DefaultConn) Exec(commands ...Command) error {
	if err := c.conn.Send("MULTI"); err != nil {
		return err
	}
	for _, command := range commands {
		if err := c.conn.Send(command.Name(), command.Args()...); err != nil {
			return err
		}
	}
	_, err := redis.Values(c.conn.Do("EXEC"))
	return err
}

func (c *DefaultConn) Do(commandString string, args ...any) (any, error) {
	return c.conn.Do(commandString, args...)
}

func (s *DefaultScript) Load(conn Conn) error {
	defaultConn := conn.(*DefaultConn)
	return s.script.Load(defaultConn.conn)
}

func (s *DefaultScript) Do(ctx context.Context, conn Conn, keysAndArgs ...any) (any, error) {
	defaultConn := conn.(*DefaultConn)
	return s.script.DoContext(ctx, defaultConn.conn, keysAndArgs...)
}

var _ Command = command{}

type command struct {
	name string
	args []any
}

func (c command) Args() []any {
	return c.args
}

func (c command) Name() string {
	return c.name
}

type Command interface {
	Name() string
	Args() []any
}

func NewCommand(name string, args ...any) Command {
	return command{name: name, args: args}
}

func NewSetHashCommand(key string, value any) Command {
	return command{
		name: "HSET",
		args: redis.Args{key}.AddFlat(value),
	}
}

func NewDelCommand(keys ...string) Command {
	return command{
		name: "DEL",
		args: redis.Args{}.AddFlat(keys),
	}
}

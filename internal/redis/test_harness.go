package redis

import (
	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"
)

var _ Client = &TestService{}

// TestService is a Client backed by an in-process miniredis server.
type TestService struct {
	Prefix  string
	Service *miniredis.Miniredis
	pool    *redis.Pool
}

func (s *TestService) Start() error {
	r, err := miniredis.Run()
	if err != nil {
		return err
	}
	s.Service = r
	s.pool = &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", s.Service.Addr())
		},
	}
	return nil
}

func (s *TestService) Stop() error {
	s.pool.Close()
	s.Service.Close()
	return nil
}

func (s *TestService) Get() Conn {
	return &DefaultConn{conn: s.pool.Get()}
}

func (s *TestService) NewScript(keyCount int, src string) Script {
	return &DefaultScript{
		script: redis.NewScript(keyCount, src),
	}
}

func (s *TestService) Key(parts ...string) string {
	return joinKey(s.Prefix, parts)
}

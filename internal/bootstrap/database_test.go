package bootstrap

import (
	"context"
	"net/url"
	"reflect"
	"testing"

	"github.com/parlorchat/parlor/config"
)

func TestNormalizeAddrs(t *testing.T) {
	got := normalizeAddrs([]string{" a:1 ", "", "  ", "b:2"})
	if !reflect.DeepEqual(got, []string{"a:1", "b:2"}) {
		t.Fatalf("normalizeAddrs() = %v", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(config.DBConfig{
		Host: "db", Port: 5433, User: "app", Password: "p@ss:w/rd", Name: "chat", SSLMode: "require",
	})
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	pw, _ := u.User.Password()
	if u.Host != "db:5433" || u.Path != "/chat" || pw != "p@ss:w/rd" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if u.Query().Get("sslmode") != "require" || u.Query().Get("application_name") != "parlor" {
		t.Fatalf("unexpected query %q", u.RawQuery)
	}
}

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RedisConfig
		wantMode redisMode
		wantDesc string
		wantErr  bool
	}{
		{
			name:     "plain address",
			cfg:      config.RedisConfig{URI: "cache:6379"},
			wantMode: redisModeDirect,
			wantDesc: "cache:6379",
		},
		{
			name:     "url",
			cfg:      config.RedisConfig{URI: "redis://localhost:6390/2"},
			wantMode: redisModeDirect,
			wantDesc: "localhost:6390",
		},
		{
			name:    "empty uri",
			cfg:     config.RedisConfig{URI: " "},
			wantErr: true,
		},
		{
			name:    "sentinel without nodes",
			cfg:     config.RedisConfig{UseSentinel: true},
			wantErr: true,
		},
		{
			name:     "sentinel",
			cfg:      config.RedisConfig{UseSentinel: true, SentinelNodes: []string{"s1:26379"}, SentinelMasterName: "primary"},
			wantMode: redisModeSentinel,
			wantDesc: "sentinel:primary",
		},
		{
			name:    "cluster without addresses",
			cfg:     config.RedisConfig{UseCluster: true},
			wantErr: true,
		},
		{
			name:     "cluster nodes",
			cfg:      config.RedisConfig{UseCluster: true, ClusterNodes: []string{"a:7000", " b:7001 "}},
			wantMode: redisModeCluster,
			wantDesc: "cluster:a:7000,b:7001",
		},
		{
			name:     "cluster seed from url",
			cfg:      config.RedisConfig{UseCluster: true, URI: "rediss://bob:pw@cache:6380/0"},
			wantMode: redisModeCluster,
			wantDesc: "cluster:cache:6380",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, opts, err := redisOptions(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mode != tt.wantMode {
				t.Fatalf("mode = %q, want %q", mode, tt.wantMode)
			}
			if got := describeRedis(mode, opts); got != tt.wantDesc {
				t.Fatalf("describe = %q, want %q", got, tt.wantDesc)
			}
			client := newRedisClient(mode, opts)
			_ = client.Close()
		})
	}
}

func TestClusterSeedCredentials(t *testing.T) {
	_, opts, err := redisOptions(config.RedisConfig{
		UseCluster: true, URI: "rediss://bob:pw@cache:6380/0", Password: "default",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Username != "bob" || opts.Password != "pw" || opts.TLSConfig == nil {
		t.Fatalf("unexpected seed options %+v", opts)
	}
}

func TestConnectRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConnectRedis(ctx, DatabaseConfig{RedisConfig: config.RedisConfig{URI: "127.0.0.1:1"}})
	if err == nil {
		t.Fatal("expected ping error")
	}
}

package nacos

import "testing"

func TestOptionsFromEnv(t *testing.T) {
	if _, ok := OptionsFromEnv([]string{"HOME=/root"}); ok {
		t.Fatal("nacos enabled without address")
	}
	opts, ok := OptionsFromEnv([]string{
		"PPGATE_NACOS_ADDR=10.0.0.1:8848,10.0.0.2:8848",
		"PPGATE_NACOS_DATA_ID=gw.yaml",
		"PPGATE_NACOS_GROUP=IM",
	})
	if !ok || opts.DataID != "gw.yaml" || opts.Group != "IM" || opts.Namespace != "public" {
		t.Fatalf("opts = %+v", opts)
	}
	servers, err := opts.serverConfigs()
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 2 || servers[1].IpAddr != "10.0.0.2" || servers[1].Port != 8848 {
		t.Fatalf("servers = %+v", servers)
	}
}

func TestServerConfigsRejectsBadAddr(t *testing.T) {
	if _, err := (Options{Addr: "no-port"}).serverConfigs(); err == nil {
		t.Fatal("bad address accepted")
	}
}

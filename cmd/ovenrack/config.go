package main

import (
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jedisct1/dlog"
	netproxy "golang.org/x/net/proxy"

	"github.com/ovenrack/ovenrack/ovenrack"
)

const (
	DefaultNetprobeAddress = "9.9.9.9:53"
)

type Config struct {
	LogLevel                 int            `toml:"log_level"`
	LogFile                  *string        `toml:"log_file"`
	UseSyslog                bool           `toml:"use_syslog"`
	ListenAddresses          []string       `toml:"listen_addresses"`
	Upstream                 string         `toml:"upstream"`
	Timeout                  int            `toml:"timeout"`
	KeepAlive                int            `toml:"keepalive"`
	UDPRetries               int            `toml:"udp_retries"`
	SendRetries              int            `toml:"send_retries"`
	SendRetryDelay           int            `toml:"send_retry_delay"`
	Proxy                    string         `toml:"proxy"`
	HTTPProxyURL             string         `toml:"http_proxy"`
	FallbackResolver         string         `toml:"fallback_resolver"`
	IgnoreSystemDNS          bool           `toml:"ignore_system_dns"`
	SourceIPv4               bool           `toml:"ipv4_servers"`
	SourceIPv6               bool           `toml:"ipv6_servers"`
	TLSDisableSessionTickets bool           `toml:"tls_disable_session_tickets"`
	TLSCipherSuite           []uint16       `toml:"tls_cipher_suite"`
	RootCAFile               string         `toml:"root_ca_file"`
	QueryLog                 QueryLogConfig `toml:"query_log"`
	LogMaxSize               int            `toml:"log_files_max_size"`
	LogMaxAge                int            `toml:"log_files_max_age"`
	LogMaxBackups            int            `toml:"log_files_max_backups"`
	NetprobeAddress          string         `toml:"netprobe_address"`
	NetprobeTimeout          int            `toml:"netprobe_timeout"`
}

func newConfig() Config {
	return Config{
		LogLevel:                 int(dlog.LogLevel()),
		ListenAddresses:          []string{"127.0.0.1:53"},
		Timeout:                  int(ovenrack.DefaultTimeout / time.Millisecond),
		KeepAlive:                5,
		UDPRetries:               ovenrack.DefaultUDPRetries,
		SendRetries:              ovenrack.DefaultSendRetries,
		SendRetryDelay:           int(ovenrack.DefaultSendRetryDelay / time.Millisecond),
		FallbackResolver:         ovenrack.DefaultFallbackResolver,
		IgnoreSystemDNS:          false,
		SourceIPv4:               true,
		SourceIPv6:               false,
		TLSDisableSessionTickets: false,
		TLSCipherSuite:           nil,
		LogMaxSize:               10,
		LogMaxAge:                7,
		LogMaxBackups:            1,
		NetprobeTimeout:          60,
	}
}

type QueryLogConfig struct {
	File          string
	Format        string
	IgnoredQtypes []string `toml:"ignored_qtypes"`
}

type ConfigFlags struct {
	ConfigFile              *string
	Version                 *bool
	Check                   *bool
	Resolve                 *string
	NetprobeTimeoutOverride *int
}

func registerFlags() *ConfigFlags {
	return &ConfigFlags{
		ConfigFile:              flag.String("config", DefaultConfigFileName, "Path to the configuration file"),
		Version:                 flag.Bool("version", false, "print current proxy version"),
		Check:                   flag.Bool("check", false, "check the configuration file and exit"),
		Resolve:                 flag.String("resolve", "", "resolve a name using the configured upstream"),
		NetprobeTimeoutOverride: flag.Int("netprobe-timeout", 60, "Override the netprobe timeout"),
	}
}

func findConfigFile(configFile *string) (string, error) {
	if _, err := os.Stat(*configFile); os.IsNotExist(err) {
		cdLocal()
		if _, err := os.Stat(*configFile); err != nil {
			return "", err
		}
	}
	pwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(*configFile) {
		return *configFile, nil
	}
	return path.Join(pwd, *configFile), nil
}

// LoadConfig decodes a configuration file on top of the defaults and
// rejects keys it does not know.
func LoadConfig(fileName string) (*Config, error) {
	config := newConfig()
	md, err := toml.DecodeFile(fileName, &config)
	if err != nil {
		return nil, err
	}
	undecoded := md.Undecoded()
	if len(undecoded) > 0 {
		return nil, fmt.Errorf("Unsupported key in configuration file: [%s]", undecoded[0])
	}
	if len(config.Upstream) == 0 {
		return nil, &ovenrack.ConfigError{Setting: "upstream", Reason: "no upstream configured"}
	}
	if config.Timeout <= 0 {
		return nil, &ovenrack.ConfigError{Setting: "timeout", Value: fmt.Sprint(config.Timeout), Reason: "must be positive"}
	}
	if config.UDPRetries < 0 || config.SendRetries < 0 || config.SendRetryDelay < 0 {
		return nil, &ovenrack.ConfigError{Setting: "udp_retries", Reason: "retry settings cannot be negative"}
	}
	if len(config.QueryLog.Format) == 0 {
		config.QueryLog.Format = "tsv"
	} else {
		config.QueryLog.Format = strings.ToLower(config.QueryLog.Format)
	}
	if config.QueryLog.Format != "tsv" && config.QueryLog.Format != "ltsv" {
		return nil, errors.New("Unsupported query log format")
	}
	return &config, nil
}

func (config *Config) configureLogging() {
	if config.LogLevel >= 0 && config.LogLevel < int(dlog.SeverityLast) {
		dlog.SetLogLevel(dlog.Severity(config.LogLevel))
	}
	if dlog.LogLevel() <= dlog.SeverityDebug && os.Getenv("DEBUG") == "" {
		dlog.SetLogLevel(dlog.SeverityInfo)
	}
	if config.UseSyslog {
		dlog.UseSyslog(true)
	} else if config.LogFile != nil {
		dlog.UseLogFile(*config.LogFile)
	}
}

func (config *Config) newXTransport() (*ovenrack.XTransport, error) {
	xTransport := ovenrack.NewXTransport()
	xTransport.Timeout = time.Duration(config.Timeout) * time.Millisecond
	xTransport.UDPRetries = config.UDPRetries
	xTransport.TLSDisableSessionTickets = config.TLSDisableSessionTickets
	xTransport.TLSCipherSuite = config.TLSCipherSuite
	if len(config.FallbackResolver) > 0 {
		if err := ovenrack.CheckResolver(config.FallbackResolver); err != nil {
			return nil, &ovenrack.ConfigError{Setting: "fallback_resolver", Value: config.FallbackResolver, Reason: err.Error()}
		}
		xTransport.IgnoreSystemDNS = config.IgnoreSystemDNS
	}
	xTransport.FallbackResolver = config.FallbackResolver
	xTransport.UseIPv4 = config.SourceIPv4
	xTransport.UseIPv6 = config.SourceIPv6
	xTransport.KeepAlive = time.Duration(config.KeepAlive) * time.Second
	if len(config.RootCAFile) > 0 {
		pem, err := os.ReadFile(config.RootCAFile)
		if err != nil {
			return nil, err
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, &ovenrack.ConfigError{Setting: "root_ca_file", Value: config.RootCAFile, Reason: "no certificate found"}
		}
		xTransport.RootCAs = roots
	}
	if len(config.HTTPProxyURL) > 0 {
		httpProxyURL, err := url.Parse(config.HTTPProxyURL)
		if err != nil {
			return nil, fmt.Errorf("Unable to parse the HTTP proxy URL [%v]", config.HTTPProxyURL)
		}
		xTransport.HTTPProxyFunction = http.ProxyURL(httpProxyURL)
	}
	if len(config.Proxy) > 0 {
		proxyDialerURL, err := url.Parse(config.Proxy)
		if err != nil {
			return nil, fmt.Errorf("Unable to parse the proxy URL [%v]", config.Proxy)
		}
		proxyDialer, err := netproxy.FromURL(proxyDialerURL, netproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("Unable to use the proxy: [%v]", err)
		}
		xTransport.ProxyDialer = &proxyDialer
	}
	xTransport.RebuildTransport()
	return xTransport, nil
}

func (config *Config) newDestClient() (*ovenrack.DestClient, error) {
	upstream, err := ovenrack.ParseUpstream(config.Upstream)
	if err != nil {
		return nil, err
	}
	if upstream.Proto == ovenrack.ProtoUDP && len(config.Proxy) > 0 {
		dlog.Warnf("Upstream [%v] uses plain UDP and does not go through the proxy", upstream)
	}
	xTransport, err := config.newXTransport()
	if err != nil {
		return nil, err
	}
	return ovenrack.NewDestClient(upstream, xTransport)
}

func (config *Config) newQueryLog() (*ovenrack.QueryLog, error) {
	if len(config.QueryLog.File) == 0 {
		return nil, nil
	}
	logger := ovenrack.Logger(config.LogMaxSize, config.LogMaxAge, config.LogMaxBackups, config.QueryLog.File)
	return ovenrack.NewQueryLog(logger, config.QueryLog.Format, config.QueryLog.IgnoredQtypes)
}

func (config *Config) newProxy(forwarder ovenrack.Forwarder) (*ovenrack.Proxy, error) {
	if len(config.ListenAddresses) == 0 {
		dlog.Debug("No local IP/port configured")
	}
	proxy := ovenrack.NewProxy(ovenrack.NewCache(), forwarder)
	proxy.ListenAddresses = config.ListenAddresses
	proxy.SendRetries = config.SendRetries
	proxy.SendRetryDelay = time.Duration(config.SendRetryDelay) * time.Millisecond
	queryLog, err := config.newQueryLog()
	if err != nil {
		return nil, err
	}
	proxy.QueryLog = queryLog
	return proxy, nil
}

func (config *Config) netprobe(flags *ConfigFlags) (string, int) {
	netprobeTimeout := config.NetprobeTimeout
	flag.Visit(func(flag *flag.Flag) {
		if flag.Name == "netprobe-timeout" && flags.NetprobeTimeoutOverride != nil {
			netprobeTimeout = *flags.NetprobeTimeoutOverride
		}
	})
	netprobeAddress := DefaultNetprobeAddress
	if len(config.NetprobeAddress) > 0 {
		netprobeAddress = config.NetprobeAddress
	} else if len(config.FallbackResolver) > 0 {
		netprobeAddress = config.FallbackResolver
	}
	return netprobeAddress, netprobeTimeout
}

func ConfigLoad(app *App, flags *ConfigFlags, svcFlag *string) error {
	if *svcFlag == "stop" || *svcFlag == "uninstall" {
		return nil
	}
	if *flags.Version {
		fmt.Println(AppVersion)
		os.Exit(0)
	}
	foundConfigFile, err := findConfigFile(flags.ConfigFile)
	if err != nil {
		dlog.Fatalf("Unable to load the configuration file [%s] -- Maybe use the -config command-line switch?", *flags.ConfigFile)
	}
	config, err := LoadConfig(foundConfigFile)
	if err != nil {
		return err
	}
	cdFileDir(foundConfigFile)
	isCommandMode := *flags.Check || len(*flags.Resolve) > 0
	if !isCommandMode {
		config.configureLogging()
	}
	client, err := config.newDestClient()
	if err != nil {
		return err
	}
	if len(*flags.Resolve) > 0 {
		err := ovenrack.Resolve(os.Stdout, client, *flags.Resolve)
		client.Close()
		if err != nil {
			return err
		}
		os.Exit(0)
	}
	proxy, err := config.newProxy(client)
	if err != nil {
		client.Close()
		return err
	}
	if *flags.Check {
		client.Close()
		dlog.Notice("Configuration successfully checked")
		os.Exit(0)
	}
	dlog.Noticef("ovenrack %s", AppVersion)
	netprobeAddress, netprobeTimeout := config.netprobe(flags)
	if err := ovenrack.NetProbe(netprobeAddress, netprobeTimeout); err != nil {
		return err
	}
	app.proxy = proxy
	app.client = client
	return nil
}

func cdFileDir(fileName string) {
	os.Chdir(filepath.Dir(fileName))
}

func cdLocal() {
	exeFileName, err := os.Executable()
	if err != nil {
		dlog.Warnf("Unable to determine the executable directory: [%s] -- You will need to specify absolute paths in the configuration file", err)
		return
	}
	os.Chdir(filepath.Dir(exeFileName))
}

/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	cfg "stash.kopano.io/kwm/kwmdatachannel/config"
	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
)

const envPrefix = "KWMDATACHANNELD"

// addCommonFlags adds the flags shared by all commands which create peer
// connections.
func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to optional configuration file (yaml, json or toml), flag names are used as keys")
	flags.Bool("insecure", false, "Disable TLS certificate and hostname validation")
	flags.Bool("log-timestamp", true, "Prefix each log line with timestamp")
	flags.String("log-level", "info", "Log level (one of panic, fatal, error, warn, info or debug)")
	flags.StringArray("ice-server", nil, "STUN/TURN server URL used when the room provides no ICE servers, can be given multiple times")
	flags.StringArray("use-ice-if", nil, "Interface to use when gathering ICE candidates, all interfaces will be used if not set")
	flags.StringArray("use-ice-network-type", nil, "ICE network type supported when gathering candidates, if not set all types (udp4, udp6, tcp4, tcp6) are enabled")
	flags.String("use-ice-udp-port-range", "", "Range of ephemeral ports that ICE UDP connections can allocate from in format min:max, if not set its not limited")
	flags.String("datachannel-label", orchestrator.DefaultDataChannelLabel, "Label of the data channel")
	flags.Bool("webrtc-debug", false, "Log WebRTC engine debug messages")
}

// newViper binds the flags of the provided command, the environment and the
// optional configuration file. Flags given on the command line win over the
// environment, which wins over the configuration file.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// newConfig creates the shared configuration values from the provided viper.
func newConfig(v *viper.Viper, logger logrus.FieldLogger) (*cfg.Config, error) {
	config := &cfg.Config{
		Logger: logger,

		ICEServers:       v.GetStringSlice("ice-server"),
		DataChannelLabel: v.GetString("datachannel-label"),
		WebRTCDebug:      v.GetBool("webrtc-debug"),
	}

	if ICEInterfaceStrings := v.GetStringSlice("use-ice-if"); len(ICEInterfaceStrings) > 0 {
		config.ICEInterfaces = ICEInterfaceStrings
		logger.WithField("interfaces", config.ICEInterfaces).Infoln("limiting ICE interfaces")
	}
	if ICENetworkTypeStrings := v.GetStringSlice("use-ice-network-type"); len(ICENetworkTypeStrings) > 0 {
		config.ICENetworkTypes = ICENetworkTypeStrings
		logger.WithField("types", config.ICENetworkTypes).Infoln("limiting ICE network types")
	}
	if ICEEphemeralUDPPortRangeString := v.GetString("use-ice-udp-port-range"); ICEEphemeralUDPPortRangeString != "" {
		portRange, err := parsePortRange(ICEEphemeralUDPPortRangeString)
		if err != nil {
			return nil, err
		}
		config.ICEEphemeralUDPPortRange = portRange
		logger.WithFields(logrus.Fields{
			"min": config.ICEEphemeralUDPPortRange[0],
			"max": config.ICEEphemeralUDPPortRange[1],
		}).Infoln("limiting ICE port range")
	}

	var tlsClientConfig *tls.Config
	if v.GetBool("insecure") {
		// NOTE(longsleep): This disable http2 client support. See https://github.com/golang/go/issues/14275 for reasons.
		tlsClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
		logger.Warnln("insecure mode, TLS client connections are susceptible to man-in-the-middle attacks")
		logger.Debugln("http2 client support is disabled (insecure mode)")
	}
	config.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			TLSClientConfig:       tlsClientConfig,
		},
	}

	return config, nil
}

// parsePortRange parses min:max where both values are optional.
func parsePortRange(value string) ([2]uint16, error) {
	minMaxStrings := strings.SplitN(value, ":", 2)
	portRange := [2]uint16{10000, ^uint16(0)}
	if minMaxStrings[0] != "" {
		minPort, err := strconv.ParseUint(minMaxStrings[0], 10, 16)
		if err != nil {
			return portRange, fmt.Errorf("invalid min port value in use-ice-udp-port-range: %w", err)
		}
		portRange[0] = uint16(minPort)
	}
	if len(minMaxStrings) > 1 && minMaxStrings[1] != "" {
		maxPort, err := strconv.ParseUint(minMaxStrings[1], 10, 16)
		if err != nil {
			return portRange, fmt.Errorf("invalid max port value in use-ice-udp-port-range: %w", err)
		}
		if maxPort <= uint64(portRange[0]) {
			return portRange, fmt.Errorf("max port value in use-ice-udp-port-range must be higher than min port %d", portRange[0])
		}
		portRange[1] = uint16(maxPort)
	}
	return portRange, nil
}

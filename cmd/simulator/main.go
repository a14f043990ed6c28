package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

var (
	serverURL      = flag.String("server", "ws://localhost:9000/ocpp", "OCPP-J server WebSocket URL")
	chargePointID  = flag.String("id", "CP001", "Charge point serial id")
	vendor         = flag.String("vendor", "OCPP-CSMS", "Charge point vendor")
	model          = flag.String("model", "SimulatorV1", "Charge point model")
	serial         = flag.String("serial", "SIM001", "Serial number")
	firmware       = flag.String("firmware", "1.0.0", "Firmware version")
	authPassword   = flag.String("password", "", "HTTP Basic Auth password, if the server requires one")
	connectorCount = flag.Int("connectors", 1, "Number of connectors")
	interactive    = flag.Bool("interactive", false, "Enable interactive mode")
	verbose        = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config := &SimulatorConfig{
		ServerURL:       *serverURL,
		ChargePointID:   *chargePointID,
		Vendor:          *vendor,
		Model:           *model,
		SerialNumber:    *serial,
		FirmwareVersion: *firmware,
		AuthPassword:    *authPassword,
		ConnectorCount:  *connectorCount,
	}

	simulator := NewSimulator(config, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		simulator.Stop()
		os.Exit(0)
	}()

	if err := simulator.Connect(); err != nil {
		logger.Fatal("Failed to connect to server", zap.Error(err))
	}

	if *interactive {
		runInteractiveMode(simulator)
	} else {
		fmt.Printf("OCPP-J Charge Point Simulator started\n")
		fmt.Printf("  ID: %s\n", *chargePointID)
		fmt.Printf("  Server: %s\n", *serverURL)
		fmt.Println("\nPress Ctrl+C to stop")
		select {}
	}
}

func runInteractiveMode(sim *Simulator) {
	fmt.Println("\nOCPP-J Charge Point Simulator - Interactive Mode")
	fmt.Println("=================================================")
	fmt.Println("Commands:")
	fmt.Println("  heartbeat                         - Send Heartbeat")
	fmt.Println("  authorize <idTag>                 - Send Authorize")
	fmt.Println("  start <connector> <idTag>          - Start a transaction")
	fmt.Println("  stop <connector>                   - Stop the active transaction")
	fmt.Println("  meter <connector> <wh>             - Send a meter value")
	fmt.Println("  status <connector> <Available|...> - Send StatusNotification")
	fmt.Println("  quit                               - Exit simulator")
	fmt.Println("")

	sim.RunInteractive()
}

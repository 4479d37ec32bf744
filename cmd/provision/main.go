// Command provision writes the store fields a meter device needs before the
// poller can run: the vendor id, its credentials, and the tunable defaults.
package main

import (
	"context"
	"os"

	"github.com/levenlabs/go-lflag"

	"github.com/solarmeter/solarmeter/pkg/log"
	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

func main() {
	st := store.Configured()

	device := lflag.String("meter-device", "meter", "Device id to provision")
	vendorID := lflag.RequiredString("vendor", "Vendor id (enphase-local, enphase-remote, fronius, solaredge, ginlong, pvoutput, solax, solarman)")
	ip := lflag.String("ip", "", "Local gateway/inverter IPv4 address")
	apiKey := lflag.String("api-key", "", "Vendor API key")
	userID := lflag.String("user-id", "", "Vendor account user id")
	systemID := lflag.String("system-id", "", "Vendor site/system id")
	token := lflag.String("token", "", "Vendor token/password/cookie value")
	deviceID := lflag.String("device-id", "", "Vendor-side device id or serial")
	dayInterval := lflag.String("day-interval", "300", "Seconds between daytime polls")
	minInterval := lflag.String("min-interval", "30", "Minimum seconds between polls")

	lflag.Configure()

	ctx := context.Background()
	fields := map[string]string{
		types.KeySystem:      *vendorID,
		types.KeyEnabled:     "true",
		types.KeyDayInterval: *dayInterval,
		types.KeyMinInterval: *minInterval,
		types.KeyIP:          *ip,
		types.KeyAPIKey:      *apiKey,
		types.KeyUserID:      *userID,
		types.KeySystemID:    *systemID,
		types.KeyToken:       *token,
		types.KeyDeviceID:    *deviceID,
	}

	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := st.Set(ctx, *device, key, value); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to write field", "key", key, "error", err)
			os.Exit(1)
		}
	}

	if err := st.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "provisioned", "device", *device, "vendor", *vendorID)
}

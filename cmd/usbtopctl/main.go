// Command usbtopctl enumerates a USB device over a Linux usbfs node and
// prints its vendor/product IDs, configuration count, active
// bConfigurationValue and the size of the active configuration blob; the
// spawner logs each child it would publish. It does not print the
// descriptor tree or the interface status table. It is a demonstrator in
// the way the teacher ships cmd/lsusb and cmd/listconfigs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	usbdevice "github.com/kevmo314/usb-device-core"
	"github.com/kevmo314/usb-device-core/linuxhci"
)

// noopSpawner publishes no real children; it exists so usbtopctl can run
// the full enumeration and walk without a device-manager collaborator,
// reporting what it would have spawned instead.
type noopSpawner struct {
	log *zap.Logger
}

func (s *noopSpawner) SpawnInterface(parent *usbdevice.Device, iid uint8, desc []byte) (usbdevice.ChildHandle, error) {
	s.log.Info("would spawn interface child", zap.Uint8("interface", iid), zap.Int("bytes", len(desc)))
	return iid, nil
}

func (s *noopSpawner) SpawnAssociation(parent *usbdevice.Device, first, count uint8, desc []byte) (usbdevice.ChildHandle, error) {
	s.log.Info("would spawn association child",
		zap.Uint8("first_interface", first), zap.Uint8("interface_count", count), zap.Int("bytes", len(desc)))
	return first, nil
}

func (s *noopSpawner) RemoveChild(h usbdevice.ChildHandle) error { return nil }

func (s *noopSpawner) SetChildAltSetting(h usbdevice.ChildHandle, alt uint8) error { return nil }

func main() {
	path := flag.String("device", "", "usbfs device node, e.g. /dev/bus/usb/001/004")
	timeout := flag.Duration("timeout", 5*time.Second, "control transfer timeout")
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: usbtopctl -device /dev/bus/usb/BBB/DDD")
		os.Exit(2)
	}

	hci := linuxhci.New()
	const deviceID = 1
	if err := hci.Open(deviceID, *path); err != nil {
		log.Fatal("open device", zap.Error(err))
	}
	defer hci.Close(deviceID)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dev, err := usbdevice.AddDevice(ctx, hci, &noopSpawner{log: log}, nil, deviceID, usbdevice.RootHubID, usbdevice.SpeedUnknown,
		usbdevice.WithLogger(log), usbdevice.WithControlTimeout(*timeout))
	if err != nil {
		log.Fatal("add device", zap.Error(err))
	}
	defer dev.Release()

	desc := dev.GetDeviceDescriptor()
	fmt.Printf("device %04x:%04x, %d configuration(s), active bConfigurationValue=%d\n",
		desc.VendorID, desc.ProductID, desc.NumConfigurations, dev.GetConfiguration())

	size := dev.GetDescriptorsSize()
	buf := make([]byte, size)
	if _, err := dev.GetDescriptors(buf); err != nil {
		log.Fatal("get_descriptors", zap.Error(err))
	}
	fmt.Printf("active configuration blob: %d bytes\n", len(buf))
}

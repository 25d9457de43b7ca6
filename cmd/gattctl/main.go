// Command gattctl is a demonstration CLI over the linux Requester:
// connect to a peripheral, discover its profile, read and write
// attributes, and watch notifications, all from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/urfave/cli"

	"github.com/kestrel-systems/attble"
	"github.com/kestrel-systems/attble/linux"
)

var (
	stdout  = colorable.NewColorableStdout()
	isTTY   = isatty.IsTerminal(os.Stdout.Fd())
	cyan    = ansi.ColorFunc("cyan")
	green   = ansi.ColorFunc("green")
	red     = ansi.ColorFunc("red+b")
)

func note(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if isTTY {
		msg = cyan(msg)
	}
	fmt.Fprintln(stdout, msg)
}

func fail(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if isTTY {
		msg = red(msg)
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func openRequester(c *cli.Context) *linux.Requester {
	var opts []ble.Option
	if c.GlobalBool("verbose") {
		opts = append(opts, ble.WithLogger(newLogxiLogger("gattctl")))
	}
	if dir := c.GlobalString("cache-dir"); dir != "" {
		opts = append(opts, ble.WithGattCache(ble.NewFileGattCache(dir)))
	}
	r, err := linux.Open(c.GlobalString("hci"), opts...)
	if err != nil {
		fail("gattctl: open %s: %v", c.GlobalString("hci"), err)
	}
	return r
}

func parseAddr(s string) ble.Addr {
	typ := ble.AddrTypePublic
	if strings.HasSuffix(s, "/random") {
		typ = ble.AddrTypeRandom
		s = strings.TrimSuffix(s, "/random")
	}
	a, err := ble.ParseAddr(s, typ)
	if err != nil {
		fail("gattctl: %v", err)
	}
	return a
}

func connectAndDiscover(c *cli.Context) (*linux.Requester, *ble.Profile) {
	r := openRequester(c)
	peer := parseAddr(c.Args().First())

	if err := r.Connect(peer, ble.DefaultConnParams(), true); err != nil {
		fail("gattctl: connect %s: %v", peer, err)
	}
	note("connected to %s", green(peer.String()))

	profile, err := r.DiscoverProfile(c.Bool("force"))
	if err != nil {
		fail("gattctl: discover profile: %v", err)
	}
	return r, profile
}

func connectCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("usage: gattctl connect <addr>", 1)
	}
	r, profile := connectAndDiscover(c)
	defer r.Close()

	if rssi, err := r.ReadRSSI(); err == nil {
		note("RSSI: %d dBm", rssi)
	}

	for _, s := range profile.Services {
		label := s.UUID.String()
		if name := ble.KnownServiceName(s.UUID); name != "" {
			label = name
		}
		fmt.Fprintf(stdout, "service %s (0x%04X-0x%04X)\n", label, s.Handle, s.EndHandle)
		for _, ch := range s.Characteristics {
			chLabel := ch.UUID.String()
			if name := ble.KnownCharacteristicName(ch.UUID); name != "" {
				chLabel = name
			}
			fmt.Fprintf(stdout, "  characteristic %s [%s] handle=0x%04X\n", chLabel, ch.Property, ch.ValueHandle)
		}
	}
	return nil
}

func readCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.NewExitError("usage: gattctl read <addr> <handle>", 1)
	}
	r := openRequester(c)
	defer r.Close()
	peer := parseAddr(c.Args().Get(0))
	if err := r.Connect(peer, ble.DefaultConnParams(), true); err != nil {
		fail("gattctl: connect: %v", err)
	}
	handle, err := strconv.ParseUint(c.Args().Get(1), 0, 16)
	if err != nil {
		fail("gattctl: invalid handle: %v", err)
	}
	v, err := r.ReadByHandle(uint16(handle))
	if err != nil {
		fail("gattctl: read: %v", err)
	}
	fmt.Fprintf(stdout, "% X\n", v)
	return nil
}

func writeCommand(c *cli.Context) error {
	if c.NArg() < 3 {
		return cli.NewExitError("usage: gattctl write <addr> <handle> <hex-value>", 1)
	}
	r := openRequester(c)
	defer r.Close()
	peer := parseAddr(c.Args().Get(0))
	if err := r.Connect(peer, ble.DefaultConnParams(), true); err != nil {
		fail("gattctl: connect: %v", err)
	}
	handle, err := strconv.ParseUint(c.Args().Get(1), 0, 16)
	if err != nil {
		fail("gattctl: invalid handle: %v", err)
	}
	value := parseHex(c.Args().Get(2))
	if err := r.WriteByHandle(uint16(handle), value, c.Bool("no-rsp")); err != nil {
		fail("gattctl: write: %v", err)
	}
	note("wrote %d bytes", len(value))
	return nil
}

func watchCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.NewExitError("usage: gattctl watch <addr> <characteristic-uuid>", 1)
	}
	r, profile := connectAndDiscover(c)
	defer r.Close()

	u, err := ble.ParseUUID(c.Args().Get(1))
	if err != nil {
		fail("gattctl: invalid UUID: %v", err)
	}
	ch := profile.FindCharacteristic(u)
	if ch == nil {
		fail("gattctl: characteristic %s not found", u)
	}
	err = r.EnableNotifications(ch, false, func(id uint, data []byte) {
		fmt.Fprintf(stdout, "[%d] % X\n", id, data)
	})
	if err != nil {
		fail("gattctl: subscribe: %v", err)
	}
	note("watching %s, ctrl-c to stop", ch.UUID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	<-ctx.Done()
	return nil
}

func parseHex(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b := make([]byte, len(s)/2)
	for i := range b {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			fail("gattctl: invalid hex value %q", s)
		}
		b[i] = byte(v)
	}
	return b
}

func main() {
	app := cli.NewApp()
	app.Name = "gattctl"
	app.Usage = "connect to and interrogate a BLE peripheral over GATT"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "hci", Value: "hci0", Usage: "HCI device to claim"},
		cli.BoolFlag{Name: "verbose", Usage: "log internal transport/GATT activity via logxi"},
		cli.StringFlag{Name: "cache-dir", Usage: "persist discovered GATT profiles under this directory"},
	}
	app.Commands = []cli.Command{
		{
			Name:      "connect",
			Usage:     "connect and print the discovered GATT profile",
			ArgsUsage: "<addr>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "force", Usage: "bypass the GATT cache"},
			},
			Action: connectCommand,
		},
		{
			Name:      "read",
			Usage:     "read an attribute by handle",
			ArgsUsage: "<addr> <handle>",
			Action:    readCommand,
		},
		{
			Name:      "write",
			Usage:     "write an attribute by handle",
			ArgsUsage: "<addr> <handle> <hex-value>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "no-rsp", Usage: "use ATT_WRITE_CMD instead of ATT_WRITE_REQ"},
			},
			Action: writeCommand,
		},
		{
			Name:      "watch",
			Usage:     "subscribe to a characteristic and print notifications",
			ArgsUsage: "<addr> <characteristic-uuid>",
			Action:    watchCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fail("gattctl: %v", err)
	}
}

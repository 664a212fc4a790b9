package main

import (
	"encoding/json"
	"sort"

	dbus "github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-kms/display"
)

const (
	dbusServiceName = "org.deepin.dde.KMS1"
	dbusPath        = "/org/deepin/dde/KMS1"
	dbusInterface   = "org.deepin.dde.KMS1"

	dbusInterfaceOutput = dbusInterface + ".Output"
)

type client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func newClient() (*client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	return &client{
		conn: conn,
		obj:  conn.Object(dbusServiceName, dbusPath),
	}, nil
}

func (c *client) call(method string, args ...interface{}) *dbus.Call {
	return c.obj.Call(dbusInterface+"."+method, 0, args...)
}

// outputState is the subset of Output.GetState we print.
type outputState struct {
	Name       string
	PowerState string
	Enabled    bool
	X, Y       int
	Scale      float64
	Transform  string
	Mode       string
	DpmsMode   string
	VrrPolicy  string
	Hdr        bool
	Leased     bool
}

func (c *client) listOutputs() ([]outputState, error) {
	var paths []dbus.ObjectPath
	err := c.call("ListOutputs").Store(&paths)
	if err != nil {
		return nil, err
	}
	var states []outputState
	for _, path := range paths {
		var data string
		err = c.conn.Object(dbusServiceName, path).
			Call(dbusInterfaceOutput+".GetState", 0).Store(&data)
		if err != nil {
			return nil, err
		}
		var st outputState
		err = json.Unmarshal([]byte(data), &st)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Name < states[j].Name
	})
	return states, nil
}

func (c *client) applyChanges(changes map[string]*display.OutputChange) error {
	data, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	logger.Debug("apply changes:", string(data))
	return c.call("ApplyChanges", string(data)).Err
}

func (c *client) createLease(outputs []string) (uint32, dbus.UnixFD, error) {
	var lesseeID uint32
	var fd dbus.UnixFD
	err := c.call("CreateLease", outputs).Store(&lesseeID, &fd)
	return lesseeID, fd, err
}

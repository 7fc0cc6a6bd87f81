package inim

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// FetchSnapshot returns the raw snapshot for one panel. deviceID 0 selects
// the only (first) device on the account.
func (c *Client) FetchSnapshot(ctx context.Context, deviceID int) (*Device, error) {
	// Best effort: ask the cloud to poll the panel first so the snapshot is
	// fresh rather than whatever the panel last pushed. With deviceID 0 the
	// target is known only after the first fetch resolved it.
	if id := c.pollTarget(deviceID); id != 0 {
		if err := c.requestPoll(ctx, id); err != nil {
			c.log.Debug("Panel poll request failed: %v", err)
		}
	}

	var devices []Device
	err := c.authorized(ctx, func(ctx context.Context, token string) error {
		data, err := c.call(ctx, request{
			Node:     nodeHome,
			Name:     nameHome,
			Method:   methodGetDevicesExtended,
			ClientID: c.clientID,
			Token:    token,
			Params:   devicesParams{Info: devicesInfoMask},
		})
		if err != nil {
			return err
		}

		var payload devicesData
		if err := json.Unmarshal(data, &payload); err != nil {
			return wrapError(KindServer, "decode devices response", err)
		}
		devices = payload.Devices
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(devices) == 0 {
		return nil, newError(KindValidation, 0, "no devices on account")
	}
	if deviceID == 0 {
		c.rememberDevice(devices[0].DeviceID)
		return &devices[0], nil
	}
	for i := range devices {
		if devices[i].DeviceID == deviceID {
			c.rememberDevice(deviceID)
			return &devices[i], nil
		}
	}

	return nil, newError(KindValidation, 0, fmt.Sprintf("device %d not found", deviceID))
}

// pollTarget picks the device id to pre-poll: the explicit id when set,
// otherwise the id a previous fetch resolved.
func (c *Client) pollTarget(deviceID int) int {
	if deviceID != 0 {
		return deviceID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

func (c *Client) rememberDevice(id int) {
	c.mu.Lock()
	c.deviceID = id
	c.mu.Unlock()
}

// SetAreas arms or disarms the given areas. The panel demands PIN
// confirmation for this call, so a configured user code is a precondition.
func (c *Client) SetAreas(ctx context.Context, deviceID int, areaIDs []int, arm bool, userCode string) error {
	if userCode == "" {
		return newError(KindPrecondition, 0, "user code not configured")
	}

	mode := areaModeDisarm
	if arm {
		mode = areaModeArm
	}

	return c.authorized(ctx, func(ctx context.Context, token string) error {
		_, err := c.call(ctx, request{
			Node:     nodeHome,
			Name:     nameHome,
			Method:   methodInsertAreas,
			ClientID: c.clientID,
			Token:    token,
			Params: insertAreasParams{
				AreaIDs:  areaIDs,
				Mode:     mode,
				DeviceID: strconv.Itoa(deviceID),
				Code:     userCode,
			},
		})
		return err
	})
}

// SetZoneBypass bypasses or reinstates a zone. Requires the user code.
func (c *Client) SetZoneBypass(ctx context.Context, deviceID, zoneID int, bypass bool, userCode string) error {
	if userCode == "" {
		return newError(KindPrecondition, 0, "user code not configured")
	}

	mode := bypassModeNormal
	if bypass {
		mode = bypassModeBypass
	}

	return c.authorized(ctx, func(ctx context.Context, token string) error {
		_, err := c.call(ctx, request{
			Node:     nodeHome,
			Name:     nameHome,
			Method:   methodInsertZone,
			ClientID: c.clientID,
			Token:    token,
			Params: insertZoneParams{
				ZoneID:   zoneID,
				Mode:     mode,
				DeviceID: strconv.Itoa(deviceID),
				Code:     userCode,
			},
		})
		return err
	})
}

// ActivateScenario runs a panel scenario. Scenarios carry their own
// authorization on the panel side, so no user code travels with the call.
func (c *Client) ActivateScenario(ctx context.Context, deviceID, scenarioID int) error {
	return c.authorized(ctx, func(ctx context.Context, token string) error {
		_, err := c.call(ctx, request{
			Node:     nodeHome,
			Name:     nameHome,
			Method:   methodActivateScenario,
			ClientID: c.clientID,
			Token:    token,
			Params: scenarioParams{
				ScenarioID: scenarioID,
				DeviceID:   deviceID,
			},
		})
		return err
	})
}

func (c *Client) requestPoll(ctx context.Context, deviceID int) error {
	return c.authorized(ctx, func(ctx context.Context, token string) error {
		_, err := c.call(ctx, request{
			Name:     clientName,
			Method:   methodRequestPoll,
			ClientID: c.clientID,
			Token:    token,
			Context:  "intrusion",
			Params:   pollParams{DeviceID: deviceID, Type: 5},
		})
		return err
	})
}

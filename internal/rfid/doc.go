// Package rfid reads tag identifiers from a serial or HID RFID reader that
// emits one identifier per line, and turns them into placement and removal
// events. A udev netlink monitor wakes the reader as soon as a detached
// device is plugged back in.
package rfid

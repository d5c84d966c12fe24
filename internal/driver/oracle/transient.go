// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package oracle

import (
	sqldriver "database/sql/driver"
	"errors"
	"net"
	"regexp"
	"strconv"

	"github.com/sijms/go-ora/v2/network"
)

// transientCodes are ORA- codes after which the session is unusable and the
// pool is rebuilt.
var transientCodes = map[int]bool{
	28:    true, // session killed
	1012:  true, // not logged on
	3113:  true, // end-of-file on communication channel
	3114:  true, // not connected to ORACLE
	3135:  true, // connection lost contact
	12528: true, // listener: all handlers blocked
	12537: true, // TNS: connection closed
	12541: true, // TNS: no listener
	12545: true, // target host or object does not exist
	12571: true, // TNS: packet writer failure
}

var oraCode = regexp.MustCompile(`ORA-(\d{5})`)

// IsTransient reports whether err is a connectivity failure.
func (d *Driver) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var oe *network.OracleError
	if errors.As(err, &oe) {
		return transientCodes[oe.ErrCode]
	}
	if errors.Is(err, sqldriver.ErrBadConn) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if code, ok := ErrorCode(err); ok {
		return transientCodes[code]
	}
	return false
}

// ErrorCode extracts the ORA- error number from err.
func ErrorCode(err error) (int, bool) {
	var oe *network.OracleError
	if errors.As(err, &oe) {
		return oe.ErrCode, true
	}
	m := oraCode.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	code, convErr := strconv.Atoi(m[1])
	return code, convErr == nil
}

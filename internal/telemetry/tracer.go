package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Generic keys follow the OpenTelemetry semantic
// conventions; protocol keys use the "smb." prefix.
const (
	AttrClientAddr = "client.address"

	AttrProtocol = "protocol.name"

	AttrSMBCommand   = "smb.command"
	AttrSMBMessageID = "smb.message_id"
	AttrSMBSessionID = "smb.session_id"
	AttrSMBDialect   = "smb.dialect"
	AttrSMBStatus    = "smb.status"
	AttrSMBSigned    = "smb.signed"
	AttrSMBUpgrade   = "smb.upgrade"

	AttrUsername = "user.name"
	AttrDomain   = "user.domain"
	AttrAuth     = "auth.method"
)

func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

func Protocol(name string) attribute.KeyValue {
	return attribute.String(AttrProtocol, name)
}

func SMBCommand(name string) attribute.KeyValue {
	return attribute.String(AttrSMBCommand, name)
}

func SMBMessageID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrSMBMessageID, int64(id))
}

// SMBSessionID renders the ID in hex, the way packet analyzers show it.
func SMBSessionID(id uint64) attribute.KeyValue {
	return attribute.String(AttrSMBSessionID, fmt.Sprintf("0x%016x", id))
}

func SMBDialect(d string) attribute.KeyValue {
	return attribute.String(AttrSMBDialect, d)
}

func SMBStatus(status string) attribute.KeyValue {
	return attribute.String(AttrSMBStatus, status)
}

func SMBSigned(signed bool) attribute.KeyValue {
	return attribute.Bool(AttrSMBSigned, signed)
}

func SMBUpgrade(upgrade bool) attribute.KeyValue {
	return attribute.Bool(AttrSMBUpgrade, upgrade)
}

func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

func Domain(name string) attribute.KeyValue {
	return attribute.String(AttrDomain, name)
}

func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// StartSMBSpan starts a span for one SMB command on a connection.
func StartSMBSpan(ctx context.Context, command string, clientAddr string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+3)
	all = append(all, Protocol("smb"), SMBCommand(command), ClientAddr(clientAddr))
	all = append(all, attrs...)
	return Tracer().Start(ctx, "smb."+command, trace.WithAttributes(all...), trace.WithSpanKind(trace.SpanKindServer))
}

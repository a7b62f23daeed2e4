package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "stayfinder.booking.v1.BookingService"

// SubmitBookingRequest starts a booking saga. Submit returns after admission;
// Execute drives the saga to its outcome before responding.
type SubmitBookingRequest struct {
	HotelID  string  `json:"hotel_id"`
	RoomID   string  `json:"room_id"`
	StayDate string  `json:"stay_date"`
	CheckIn  string  `json:"check_in"`
	CheckOut string  `json:"check_out"`
	UserID   string  `json:"user_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// SubmitBookingResponse acknowledges an accepted booking.
type SubmitBookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

// GetBookingRequest fetches the current state of a booking.
type GetBookingRequest struct {
	BookingID string `json:"booking_id"`
}

// CancelBookingRequest cancels a non-terminal booking.
type CancelBookingRequest struct {
	BookingID string `json:"booking_id"`
}

// BookingStatusResponse is the booking's current saga state.
type BookingStatusResponse struct {
	BookingID     string  `json:"booking_id"`
	HotelID       string  `json:"hotel_id"`
	RoomID        string  `json:"room_id"`
	StayDate      string  `json:"stay_date"`
	UserID        string  `json:"user_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	SupplierRef   string  `json:"supplier_ref,omitempty"`
	PaymentRef    string  `json:"payment_ref,omitempty"`
	ConfirmID     string  `json:"confirm_id,omitempty"`
	AlertRaised   bool    `json:"alert_raised,omitempty"`
	FailureReason string  `json:"failure_reason,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// BookingServiceServer is the server API of the booking service.
type BookingServiceServer interface {
	SubmitBooking(ctx context.Context, req *SubmitBookingRequest) (*SubmitBookingResponse, error)
	ExecuteBooking(ctx context.Context, req *SubmitBookingRequest) (*BookingStatusResponse, error)
	GetBooking(ctx context.Context, req *GetBookingRequest) (*BookingStatusResponse, error)
	CancelBooking(ctx context.Context, req *CancelBookingRequest) (*BookingStatusResponse, error)
}

// RegisterBookingServiceServer registers srv with the gRPC server.
func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

func unaryHandler[Req any](method string, call func(BookingServiceServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitBooking",
			Handler: unaryHandler("SubmitBooking", func(s BookingServiceServer, ctx context.Context, req *SubmitBookingRequest) (any, error) {
				return s.SubmitBooking(ctx, req)
			}),
		},
		{
			MethodName: "ExecuteBooking",
			Handler: unaryHandler("ExecuteBooking", func(s BookingServiceServer, ctx context.Context, req *SubmitBookingRequest) (any, error) {
				return s.ExecuteBooking(ctx, req)
			}),
		},
		{
			MethodName: "GetBooking",
			Handler: unaryHandler("GetBooking", func(s BookingServiceServer, ctx context.Context, req *GetBookingRequest) (any, error) {
				return s.GetBooking(ctx, req)
			}),
		},
		{
			MethodName: "CancelBooking",
			Handler: unaryHandler("CancelBooking", func(s BookingServiceServer, ctx context.Context, req *CancelBookingRequest) (any, error) {
				return s.CancelBooking(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "booking/v1/booking.json",
}
